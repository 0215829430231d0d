// internal/workers/analytics/fairness-report/models.go
package fairnessreport

import "matching-workers/internal/matching"

type Input struct {
	Token string `json:"token"`
	// Experiment overrides the configured experiment name for this run.
	Experiment string `json:"experiment,omitempty"`
}

type Output struct {
	Fairness    *matching.FairnessReport   `json:"fairness"`
	Experiment  *matching.ExperimentReport `json:"experiment,omitempty"`
	SampleCount int                        `json:"sampleCount"`
	GeneratedAt string                     `json:"generatedAt"` // ISO 8601
}
