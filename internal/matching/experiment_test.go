// internal/matching/experiment_test.go
package matching

import (
	"fmt"
	"testing"

	"matching-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignVariant_Deterministic(t *testing.T) {
	first := AssignVariant("scoring-v2", "user-123", 2)
	second := AssignVariant("scoring-v2", "user-123", 2)

	assert.Equal(t, first, second)
}

func TestAssignVariant_ExperimentChangesBucketing(t *testing.T) {
	// Same user may land in different buckets per experiment; over many
	// users the assignments must not be identical across experiments.
	differs := false
	for i := 0; i < 100; i++ {
		userID := fmt.Sprintf("user-%d", i)
		if AssignVariant("exp-a", userID, 2) != AssignVariant("exp-b", userID, 2) {
			differs = true
			break
		}
	}
	assert.True(t, differs)
}

func TestAssignVariant_CoversAllBuckets(t *testing.T) {
	seen := make(map[string]int)
	for i := 0; i < 300; i++ {
		seen[AssignVariant("scoring-v2", fmt.Sprintf("user-%d", i), 3)]++
	}

	assert.Len(t, seen, 3)
	assert.Contains(t, seen, "control")
	assert.Contains(t, seen, "variant-1")
	assert.Contains(t, seen, "variant-2")
}

func TestAssignVariant_SingleVariantFallsBackToControl(t *testing.T) {
	assert.Equal(t, "control", AssignVariant("scoring-v2", "user-123", 1))
	assert.Equal(t, "control", AssignVariant("scoring-v2", "user-123", 0))
}

// ==========================
// Experiment Evaluation Tests
// ==========================

func createVariantRows(variant string, completed, declined int) []models.AnalyticsRow {
	var rows []models.AnalyticsRow
	for i := 0; i < completed; i++ {
		rows = append(rows, models.AnalyticsRow{
			MatchID: fmt.Sprintf("%s-c-%d", variant, i),
			UserID:  fmt.Sprintf("%s-user-c-%d", variant, i),
			Outcome: models.OutcomeCompleted,
			Variant: variant,
		})
	}
	for i := 0; i < declined; i++ {
		rows = append(rows, models.AnalyticsRow{
			MatchID: fmt.Sprintf("%s-d-%d", variant, i),
			UserID:  fmt.Sprintf("%s-user-d-%d", variant, i),
			Outcome: models.OutcomeDeclined,
			Variant: variant,
		})
	}
	return rows
}

func TestEvaluateExperiment_SignificantDifference(t *testing.T) {
	rows := append(
		createVariantRows("control", 20, 80),
		createVariantRows("variant-1", 60, 40)...,
	)

	report := EvaluateExperiment("scoring-v2", rows, 1.96)

	require.Len(t, report.Variants, 2)
	assert.True(t, report.Significant)
	assert.NotZero(t, report.ZScore)
}

func TestEvaluateExperiment_NoDifference(t *testing.T) {
	rows := append(
		createVariantRows("control", 50, 50),
		createVariantRows("variant-1", 50, 50)...,
	)

	report := EvaluateExperiment("scoring-v2", rows, 1.96)

	assert.False(t, report.Significant)
	assert.InDelta(t, 0.0, report.ZScore, 1e-9)
}

func TestEvaluateExperiment_CountsPerVariant(t *testing.T) {
	rows := createVariantRows("control", 3, 1)
	rows = append(rows, models.AnalyticsRow{
		MatchID: "pending-1",
		UserID:  "user-pending",
		Outcome: models.OutcomeAccepted,
		Variant: "control",
	})

	report := EvaluateExperiment("scoring-v2", rows, 1.96)

	require.Len(t, report.Variants, 1)
	stats := report.Variants[0]
	assert.Equal(t, "control", stats.Variant)
	assert.Equal(t, 5, stats.Matches)
	assert.Equal(t, 4, stats.Resolved)
	assert.Equal(t, 3, stats.Successes)
	assert.InDelta(t, 0.75, stats.SuccessRate, 1e-9)
	assert.False(t, report.Significant)
}

func TestEvaluateExperiment_UnstampedRowsIgnored(t *testing.T) {
	rows := []models.AnalyticsRow{
		{MatchID: "m1", UserID: "u1", Outcome: models.OutcomeCompleted},
		{MatchID: "m2", UserID: "u2", Outcome: models.OutcomeDeclined},
	}

	report := EvaluateExperiment("scoring-v2", rows, 1.96)

	assert.Empty(t, report.Variants)
	assert.False(t, report.Significant)
}
