// internal/matching/optimizer.go
package matching

import (
	"math"
	"sort"

	"matching-workers/internal/common/errors"
	"matching-workers/internal/models"
)

// OptimizerConfig carries the tunables of a weight optimization run.
type OptimizerConfig struct {
	// MinSamples is the minimum number of resolved outcomes required.
	MinSamples int
	// WeightFloor is the smallest weight any feature may end up with, so
	// no feature is permanently silenced by one bad batch.
	WeightFloor float64
	// DecisionThreshold is the score cut used for the accuracy-based
	// improvement estimate. It is a tunable, not a calibrated constant.
	DecisionThreshold float64
}

// OptimizeResult is the outcome of one optimization run. The proposed
// vector is never applied here; promotion is a separate operator action.
type OptimizeResult struct {
	Weights     models.WeightVector `json:"weights"`
	Improvement float64             `json:"improvement"`
	SampleSize  int                 `json:"sampleSize"`
}

// Optimize recomputes feature weights from a batch of resolved outcomes.
// Per feature it takes the Pearson correlation between the recorded feature
// value and the binary success indicator, clamps it to the floor and
// normalizes the vector to sum 1. Rows without a success signal (accepted
// but unresolved) are ignored.
func Optimize(rows []models.AnalyticsRow, current models.WeightVector, cfg OptimizerConfig) (*OptimizeResult, error) {
	var batch []models.AnalyticsRow
	var successes []float64

	for i := range rows {
		if v, ok := rows[i].SuccessIndicator(); ok {
			batch = append(batch, rows[i])
			successes = append(successes, v)
		}
	}

	if len(batch) < cfg.MinSamples {
		return nil, errors.NewInsufficientDataError(len(batch), cfg.MinSamples)
	}

	correlations := make(models.WeightVector, len(current))
	for _, feature := range sortedFeatures(current) {
		values := make([]float64, len(batch))
		for i := range batch {
			values[i] = batch[i].Features[feature]
		}
		correlations[feature] = pearson(values, successes)
	}

	proposed := normalizeWithFloor(correlations, cfg.WeightFloor)

	improvement := accuracy(batch, successes, proposed, cfg.DecisionThreshold) -
		accuracy(batch, successes, current, cfg.DecisionThreshold)

	return &OptimizeResult{
		Weights:     proposed,
		Improvement: improvement,
		SampleSize:  len(batch),
	}, nil
}

// normalizeWithFloor turns raw correlations into a weight vector that sums
// to 1 with every weight at least the floor. Each feature gets the floor
// plus its proportional share of the remaining mass, so a feature whose
// correlation is at or below the floor lands exactly on it. When the floor
// alone exceeds the full mass, or nothing rises above it, the vector
// degenerates to uniform.
func normalizeWithFloor(correlations models.WeightVector, floor float64) models.WeightVector {
	n := len(correlations)
	if n == 0 {
		return models.WeightVector{}
	}

	budget := 1 - float64(n)*floor

	var surplusTotal float64
	for _, corr := range correlations {
		if corr > floor {
			surplusTotal += corr - floor
		}
	}

	weights := make(models.WeightVector, n)
	if budget <= 0 || surplusTotal == 0 {
		for feature := range correlations {
			weights[feature] = 1 / float64(n)
		}
		return weights
	}

	for feature, corr := range correlations {
		surplus := 0.0
		if corr > floor {
			surplus = corr - floor
		}
		weights[feature] = floor + surplus*budget/surplusTotal
	}

	return weights
}

// pearson computes the Pearson correlation coefficient between two series.
// Zero variance on either side yields 0 by definition, never NaN.
func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 || len(x) != len(y) {
		return 0
	}

	var meanX, meanY float64
	for i := range x {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= n
	meanY /= n

	var cov, varX, varY float64
	for i := range x {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	if varX == 0 || varY == 0 {
		return 0
	}

	return cov / math.Sqrt(varX*varY)
}

// accuracy is the share of rows whose threshold classification under the
// given weights agrees with the realized outcome.
func accuracy(batch []models.AnalyticsRow, successes []float64, weights models.WeightVector, threshold float64) float64 {
	if len(batch) == 0 {
		return 0
	}

	correct := 0
	for i := range batch {
		features := models.CompatibilityFeatures{
			Values:        batch[i].Features,
			HasSimilarity: hasKey(batch[i].Features, models.FeatureVectorSim),
		}

		score, _ := Score(features, weights)
		predicted := 0.0
		if score >= threshold {
			predicted = 1.0
		}

		if predicted == successes[i] {
			correct++
		}
	}

	return float64(correct) / float64(len(batch))
}

func hasKey(v models.FeatureVector, key string) bool {
	_, ok := v[key]
	return ok
}

func sortedFeatures(weights models.WeightVector) []string {
	features := make([]string, 0, len(weights))
	for feature := range weights {
		features = append(features, feature)
	}
	sort.Strings(features)
	return features
}
