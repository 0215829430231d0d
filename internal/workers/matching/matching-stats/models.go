// internal/workers/matching/matching-stats/models.go
package matchingstats

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	UserID       string  `json:"userId"`
	TotalMatches int64   `json:"totalMatches"`
	Accepted     int64   `json:"accepted"`
	Completed    int64   `json:"completed"`
	Declined     int64   `json:"declined"`
	// SuccessRate is completed over resolved (completed + declined). Zero
	// when nothing has resolved yet.
	SuccessRate float64 `json:"successRate"`
	// AvgRating is the mean of attached feedback ratings, zero when none.
	AvgRating float64 `json:"avgRating"`
}
