// internal/workers/queue/sweep-expired/models.go
package sweepexpired

type Input struct {
	// Now overrides the sweep instant (epoch ms). Zero means wall clock;
	// the override keeps replayed workflow runs deterministic.
	Now int64 `json:"now,omitempty"`
}

type Output struct {
	ExpiredCount  int64  `json:"expiredCount"`
	RepairedCount int64  `json:"repairedCount"`
	SweptAt       string `json:"sweptAt"` // ISO 8601
}
