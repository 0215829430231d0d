// internal/workers/matching/match-history/models.go
package matchhistory

type Input struct {
	UserID string `json:"userId"`
	Limit  int    `json:"limit,omitempty"`
}

type MatchSummary struct {
	MatchID         string `json:"matchId"`
	Outcome         string `json:"outcome"`
	FeedbackRating  *int   `json:"feedbackRating,omitempty"`
	FeedbackComment string `json:"feedbackComment,omitempty"`
	Variant         string `json:"variant,omitempty"`
	CreatedAt       string `json:"createdAt"`
}

type Output struct {
	UserID  string         `json:"userId"`
	Matches []MatchSummary `json:"matches"`
	Count   int            `json:"count"`
}
