// internal/matching/features.go
package matching

import (
	"math"
	"sort"
	"strings"

	"matching-workers/internal/models"
)

// maxOffsetMinutes caps the timezone distance at 12 hours; beyond that two
// users are simply "as far apart as possible".
const maxOffsetMinutes = 720

// ExtractFeatures turns two scoring profiles into a fixed compatibility
// feature vector. Every canonical feature is present and in [0,1] even when
// the underlying profile field is missing; the one exception is vector
// similarity, which is only computed when both users carry an embedding from
// the same model, and is otherwise left out of the vector entirely so the
// scorer can exclude rather than zero it.
func ExtractFeatures(a, b *models.ScoringProfile) models.CompatibilityFeatures {
	values := models.FeatureVector{
		models.FeatureInterestOverlap: jaccard(a.Interests, b.Interests),
		models.FeatureExperienceGap:   experienceCloseness(a.ExperienceLevel, b.ExperienceLevel),
		models.FeatureIndustryMatch:   equalNonEmpty(a.Industry, b.Industry),
		models.FeatureTimezoneCompat:  timezoneCompat(a.TimezoneOffset, b.TimezoneOffset),
		models.FeatureOrgMatch:        equalNonEmpty(a.Org, b.Org),
		models.FeatureLanguageOverlap: jaccard(a.Languages, b.Languages),
		models.FeatureRoleComplement:  roleComplement(a.Role, b.Role),
	}

	features := models.CompatibilityFeatures{
		Values:          values,
		SharedInterests: intersect(a.Interests, b.Interests),
	}

	if sim, ok := cosineSimilarity(a.Embedding, b.Embedding); ok {
		values[models.FeatureVectorSim] = sim
		features.HasSimilarity = true
	}

	return features
}

// jaccard is |A ∩ B| / |A ∪ B| over case-insensitive sets, 0 when either
// side is empty. Directory tags vary in casing.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	union := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		union[strings.ToLower(s)] = false
	}

	shared := 0
	for _, s := range b {
		s = strings.ToLower(s)
		seen, inA := union[s]
		if inA && !seen {
			shared++
			union[s] = true
		} else if !inA {
			union[s] = false
		}
	}

	return float64(shared) / float64(len(union))
}

// intersect returns the sorted common elements of two lists, compared
// case-insensitively and reported in lowercase.
func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	inA := make(map[string]bool, len(a))
	for _, s := range a {
		inA[strings.ToLower(s)] = true
	}

	var shared []string
	for _, s := range b {
		s = strings.ToLower(s)
		if inA[s] {
			shared = append(shared, s)
			inA[s] = false
		}
	}

	sort.Strings(shared)
	return shared
}

// experienceCloseness maps the gap between two 1..5 levels to [0,1], 1 for
// identical levels. A missing level (0) scores neutral 0, and out-of-range
// levels from a dirty directory record clamp at the widest gap.
func experienceCloseness(a, b int) float64 {
	if a < 1 || b < 1 {
		return 0
	}
	gap := math.Abs(float64(a - b))
	if gap > 4 {
		gap = 4
	}
	return 1 - gap/4
}

func equalNonEmpty(a, b string) float64 {
	if a != "" && a == b {
		return 1
	}
	return 0
}

func timezoneCompat(a, b int) float64 {
	diff := math.Abs(float64(a - b))
	if diff > maxOffsetMinutes {
		diff = maxOffsetMinutes
	}
	return 1 - diff/maxOffsetMinutes
}

// roleComplement rewards pairs with different roles: networking matches
// between, say, a founder and an investor are the interesting ones.
func roleComplement(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a != b {
		return 1
	}
	return 0.5
}

// cosineSimilarity maps cosine distance between two embeddings onto [0,1].
// It reports ok=false when either embedding is missing, the model tags
// differ, the dimensions differ, or a vector has zero magnitude.
func cosineSimilarity(a, b *models.Embedding) (float64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if a.Model != b.Model || a.Dimension() == 0 || a.Dimension() != b.Dimension() {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a.Vector {
		va, vb := float64(a.Vector[i]), float64(b.Vector[i])
		dot += va * vb
		normA += va * va
		normB += vb * vb
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp first: float error can push |cos| marginally past 1.
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}

	return (cos + 1) / 2, true
}
