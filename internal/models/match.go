// internal/models/match.go
package models

// FeatureVector maps feature name to a value normalized to [0,1].
type FeatureVector map[string]float64

// WeightVector maps feature name to its importance coefficient. An active
// vector is normalized: every weight >= the configured floor and the sum is 1.
type WeightVector map[string]float64

// Canonical feature names shared by the extractor, scorer and optimizer.
const (
	FeatureInterestOverlap = "interestOverlap"
	FeatureExperienceGap   = "experienceGap"
	FeatureIndustryMatch   = "industryMatch"
	FeatureTimezoneCompat  = "timezoneCompat"
	FeatureVectorSim       = "vectorSimilarity"
	FeatureOrgMatch        = "orgMatch"
	FeatureLanguageOverlap = "languageOverlap"
	FeatureRoleComplement  = "roleComplement"
)

// CompatibilityFeatures is the extractor output: a fixed feature vector plus
// a flag telling the scorer whether vectorSimilarity was computable. When
// HasSimilarity is false the similarity term is excluded from the weighted
// sum entirely rather than scored as zero.
type CompatibilityFeatures struct {
	Values        FeatureVector `json:"values"`
	HasSimilarity bool          `json:"hasSimilarity"`

	// SharedInterests feeds the human-readable explanation, it carries no
	// weight in the score itself.
	SharedInterests []string `json:"sharedInterests,omitempty"`
}

// MatchResult is the ephemeral output of scoring a candidate pair. It is not
// persisted as its own table; MatchID anchors later analytics rows.
type MatchResult struct {
	MatchID      string                `json:"matchId"`
	UserID       string                `json:"userId"`
	CandidateID  string                `json:"candidateId"`
	Score        float64               `json:"score"`
	Features     CompatibilityFeatures `json:"features"`
	Explanations []string              `json:"explanations"`
	Variant      string                `json:"variant,omitempty"`
}
