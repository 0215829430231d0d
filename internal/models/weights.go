// internal/models/weights.go
package models

import "time"

type WeightVectorStatus string

const (
	WeightStatusProposed WeightVectorStatus = "proposed"
	WeightStatusActive   WeightVectorStatus = "active"
	WeightStatusRetired  WeightVectorStatus = "retired"
)

// WeightVectorRecord is one versioned weight configuration. Exactly one row
// is active at a time; the optimizer only ever inserts proposed rows and an
// operator promotes them (weights-promoter tool).
type WeightVectorRecord struct {
	ID          string             `json:"id"`
	Version     int                `json:"version"`
	Weights     WeightVector       `json:"weights"`
	Status      WeightVectorStatus `json:"status"`
	Improvement float64            `json:"improvement"`
	SampleSize  int                `json:"sampleSize"`
	CreatedAt   time.Time          `json:"createdAt"`
	PromotedAt  *time.Time         `json:"promotedAt,omitempty"`
}

// DefaultWeights is the bootstrap vector used until the first promotion.
// Values sum to 1.
func DefaultWeights() WeightVector {
	return WeightVector{
		FeatureInterestOverlap: 0.25,
		FeatureExperienceGap:   0.10,
		FeatureIndustryMatch:   0.10,
		FeatureTimezoneCompat:  0.10,
		FeatureVectorSim:       0.20,
		FeatureOrgMatch:        0.05,
		FeatureLanguageOverlap: 0.10,
		FeatureRoleComplement:  0.10,
	}
}
