// internal/matching/scorer.go
package matching

import (
	"fmt"
	"sort"
	"strings"

	"matching-workers/internal/models"
)

// maxExplanations caps the explanation list at the top contributors.
const maxExplanations = 3

type contribution struct {
	feature string
	value   float64
	weight  float64
}

func (c contribution) amount() float64 {
	return c.value * c.weight
}

// Score combines a feature vector with a weight vector into a single
// compatibility score plus a ranked explanation list.
//
// Only features present in both vectors participate. When the similarity
// term was not computable it is excluded and the remaining weights are
// renormalized, so a pair without embeddings is compared on the same scale
// as a pair with them instead of being penalized. If the vectors share no
// keys the score is 0 with an empty explanation, which is a valid result.
func Score(features models.CompatibilityFeatures, weights models.WeightVector) (float64, []string) {
	var contributions []contribution
	var usedWeight float64

	for feature, weight := range weights {
		if feature == models.FeatureVectorSim && !features.HasSimilarity {
			continue
		}

		value, ok := features.Values[feature]
		if !ok {
			continue
		}

		contributions = append(contributions, contribution{feature: feature, value: value, weight: weight})
		usedWeight += weight
	}

	if len(contributions) == 0 || usedWeight == 0 {
		return 0, nil
	}

	var weighted float64
	for _, c := range contributions {
		weighted += c.amount()
	}
	score := weighted / usedWeight

	sort.Slice(contributions, func(i, j int) bool {
		if contributions[i].amount() != contributions[j].amount() {
			return contributions[i].amount() > contributions[j].amount()
		}
		return contributions[i].feature < contributions[j].feature
	})

	explanations := make([]string, 0, maxExplanations)
	for _, c := range contributions {
		if len(explanations) == maxExplanations {
			break
		}
		if c.amount() <= 0 {
			continue
		}
		explanations = append(explanations, explain(c, features))
	}

	return score, explanations
}

func explain(c contribution, features models.CompatibilityFeatures) string {
	base := fmt.Sprintf("%s: %.2f (value %.2f x weight %.2f)", c.feature, c.amount(), c.value, c.weight)

	if c.feature == models.FeatureInterestOverlap && len(features.SharedInterests) > 0 {
		return fmt.Sprintf("%s, shared interests: %s", base, strings.Join(features.SharedInterests, ", "))
	}

	return base
}
