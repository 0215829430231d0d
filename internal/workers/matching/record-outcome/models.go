// internal/workers/matching/record-outcome/models.go
package recordoutcome

import "matching-workers/internal/models"

type Input struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
	Outcome string `json:"outcome"`
	// Features and weights are carried through the workflow from scoring
	// time so the row records exactly what produced the match.
	Features models.FeatureVector `json:"features,omitempty"`
	Weights  models.WeightVector  `json:"weights,omitempty"`
	Variant  string               `json:"variant,omitempty"`
	// UserEmail, when present on a completed outcome, receives the
	// feedback request.
	UserEmail string `json:"userEmail,omitempty"`
}

type Output struct {
	Recorded   bool   `json:"recorded"`
	RecordedAt string `json:"recordedAt"` // ISO 8601
}
