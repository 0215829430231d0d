// internal/workers/queue/withdraw-user/models.go
package withdrawuser

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	Withdrawn   bool   `json:"withdrawn"`
	WithdrawnAt string `json:"withdrawnAt,omitempty"` // ISO 8601, set when an entry was cancelled
}
