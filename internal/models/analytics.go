// internal/models/analytics.go
package models

import "time"

type MatchOutcome string

const (
	OutcomeAccepted  MatchOutcome = "accepted"
	OutcomeDeclined  MatchOutcome = "declined"
	OutcomeCompleted MatchOutcome = "completed"
)

// Valid reports whether the outcome is one of the three recorded states.
func (o MatchOutcome) Valid() bool {
	return o == OutcomeAccepted || o == OutcomeDeclined || o == OutcomeCompleted
}

// AnalyticsRow is one (user, match) outcome record. Rows are append-only;
// the only permitted mutation is merging feedback into an existing row.
// These rows are the sole durable trace of past scoring decisions and the
// only input to weight learning and fairness auditing.
type AnalyticsRow struct {
	MatchID         string        `json:"matchId"`
	UserID          string        `json:"userId"`
	Outcome         MatchOutcome  `json:"outcome"`
	FeedbackRating  *int          `json:"feedbackRating,omitempty"` // 1..5
	FeedbackComment string        `json:"feedbackComment,omitempty"`
	Features        FeatureVector `json:"features"`
	Weights         WeightVector  `json:"weights"`
	Variant         string        `json:"variant,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// SuccessIndicator maps the outcome to the binary learning signal:
// completed -> 1, declined -> 0. Accepted rows carry no signal yet and are
// excluded from training batches, in which case ok is false.
func (r *AnalyticsRow) SuccessIndicator() (v float64, ok bool) {
	switch r.Outcome {
	case OutcomeCompleted:
		return 1, true
	case OutcomeDeclined:
		return 0, true
	default:
		return 0, false
	}
}
