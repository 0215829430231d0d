// internal/matching/experiment.go
package matching

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"matching-workers/internal/models"
)

// AssignVariant deterministically buckets a user into one of n variants for
// the named experiment. Hash-based so the same user always lands in the same
// bucket without any allocation state.
func AssignVariant(experiment, userID string, variants int) string {
	if variants < 2 {
		return "control"
	}

	h := fnv.New32a()
	h.Write([]byte(experiment))
	h.Write([]byte{0})
	h.Write([]byte(userID))

	bucket := h.Sum32() % uint32(variants)
	if bucket == 0 {
		return "control"
	}
	return fmt.Sprintf("variant-%d", bucket)
}

// VariantStats aggregates one variant's outcomes.
type VariantStats struct {
	Variant      string  `json:"variant"`
	Participants int     `json:"participants"`
	Matches      int     `json:"matches"`
	Resolved     int     `json:"resolved"`
	Successes    int     `json:"successes"`
	SuccessRate  float64 `json:"successRate"`
}

// ExperimentReport compares outcome success rates across variants.
type ExperimentReport struct {
	Experiment  string         `json:"experiment"`
	Variants    []VariantStats `json:"variants"`
	ZScore      float64        `json:"zScore"`
	Significant bool           `json:"significant"`
}

// EvaluateExperiment aggregates analytics rows per variant and applies a
// two-proportion z-test between the two largest variants. Rows without a
// variant stamp are outside the experiment and ignored.
func EvaluateExperiment(experiment string, rows []models.AnalyticsRow, significanceZ float64) *ExperimentReport {
	byVariant := make(map[string]*VariantStats)
	participants := make(map[string]map[string]bool)

	for i := range rows {
		row := &rows[i]
		if row.Variant == "" {
			continue
		}

		stats, ok := byVariant[row.Variant]
		if !ok {
			stats = &VariantStats{Variant: row.Variant}
			byVariant[row.Variant] = stats
			participants[row.Variant] = make(map[string]bool)
		}

		if !participants[row.Variant][row.UserID] {
			participants[row.Variant][row.UserID] = true
			stats.Participants++
		}
		stats.Matches++

		if v, resolved := row.SuccessIndicator(); resolved {
			stats.Resolved++
			if v == 1 {
				stats.Successes++
			}
		}
	}

	report := &ExperimentReport{Experiment: experiment}
	for _, stats := range byVariant {
		if stats.Resolved > 0 {
			stats.SuccessRate = float64(stats.Successes) / float64(stats.Resolved)
		}
		report.Variants = append(report.Variants, *stats)
	}

	sort.Slice(report.Variants, func(i, j int) bool {
		if report.Variants[i].Resolved != report.Variants[j].Resolved {
			return report.Variants[i].Resolved > report.Variants[j].Resolved
		}
		return report.Variants[i].Variant < report.Variants[j].Variant
	})

	if len(report.Variants) >= 2 {
		report.ZScore = twoProportionZ(report.Variants[0], report.Variants[1])
		report.Significant = math.Abs(report.ZScore) >= significanceZ
	}

	return report
}

// twoProportionZ is the pooled two-proportion z statistic between the
// success rates of two variants. Degenerate pools (no resolved outcomes, or
// all identical) give 0.
func twoProportionZ(a, b VariantStats) float64 {
	n1, n2 := float64(a.Resolved), float64(b.Resolved)
	if n1 == 0 || n2 == 0 {
		return 0
	}

	p1 := float64(a.Successes) / n1
	p2 := float64(b.Successes) / n2
	pooled := (float64(a.Successes) + float64(b.Successes)) / (n1 + n2)

	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))
	if se == 0 {
		return 0
	}

	return (p1 - p2) / se
}
