// internal/workers/matching/find-match/models.go
package findmatch

import "matching-workers/internal/models"

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	Matched bool `json:"matched"`

	// The fields below are only set when Matched is true. Features and
	// weights travel with the workflow so the outcome recorder can persist
	// exactly what was in effect at scoring time.
	MatchID      string               `json:"matchId,omitempty"`
	CandidateID  string               `json:"candidateId,omitempty"`
	Score        float64              `json:"score,omitempty"`
	Explanations []string             `json:"explanations,omitempty"`
	Variant      string               `json:"variant,omitempty"`
	Features     models.FeatureVector `json:"features,omitempty"`
	Weights      models.WeightVector  `json:"weights,omitempty"`
	MatchedAt    string               `json:"matchedAt,omitempty"` // ISO 8601
}
