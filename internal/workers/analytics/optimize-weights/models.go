// internal/workers/analytics/optimize-weights/models.go
package optimizeweights

import "matching-workers/internal/models"

type Input struct {
	// Token is the caller's bearer token; the run requires the admin role.
	Token string `json:"token"`
	// MinSamples optionally raises the sample floor for this run.
	MinSamples int `json:"minSamples,omitempty"`
}

type Output struct {
	// ProposedVersion identifies the stored proposed weight vector. It is
	// not applied; promotion is a separate operator action.
	ProposedVersion int                 `json:"proposedVersion"`
	Weights         models.WeightVector `json:"weights"`
	Improvement     float64             `json:"improvement"`
	SampleSize      int                 `json:"sampleSize"`
	ProposedAt      string              `json:"proposedAt"` // ISO 8601
}
