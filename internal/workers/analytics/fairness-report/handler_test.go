// internal/workers/analytics/fairness-report/handler_test.go
package fairnessreport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	stderrors "matching-workers/internal/common/errors"
	"matching-workers/internal/common/logger"
	"matching-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout:            30 * time.Second,
		Window:             30 * 24 * time.Hour,
		DisparityThreshold: 0.2,
		MinSegmentSize:     2,
		SignificanceZ:      1.96,
		AdminRole:          "matching-admin",
	}
}

type stubAuth struct {
	err error
}

func (s *stubAuth) RequireRole(ctx context.Context, token, role string) error {
	return s.err
}

type stubDirectory struct {
	segments map[string]string
	err      error
}

func (s *stubDirectory) GetProfiles(ctx context.Context, userIDs []string) (map[string]*models.ScoringProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	result := make(map[string]*models.ScoringProfile)
	for _, id := range userIDs {
		if segment, ok := s.segments[id]; ok {
			result[id] = &models.ScoringProfile{UserID: id, Segment: segment}
		}
	}
	return result, nil
}

func sampleColumns() []string {
	return []string{"user_id", "status", "created_at", "updated_at", "outcome", "feedback_rating"}
}

// createSampleRows seeds two segments: segment-a always matches quickly,
// segment-b rarely matches and waits long.
func createSampleRows(perSegment int) *sqlmock.Rows {
	rows := sqlmock.NewRows(sampleColumns())
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < perSegment; i++ {
		rows.AddRow(fmt.Sprintf("a-%03d", i), "matched", base, base.Add(time.Minute), "completed", int64(5))
		rows.AddRow(fmt.Sprintf("b-%03d", i), "waiting", base, base, nil, nil)
	}
	return rows
}

type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) {
	tl.t.Logf("DEBUG: %s %v", msg, fields)
}

func (tl *testLogger) Info(msg string, fields map[string]interface{}) {
	tl.t.Logf("INFO: %s %v", msg, fields)
}

func (tl *testLogger) Warn(msg string, fields map[string]interface{}) {
	tl.t.Logf("WARN: %s %v", msg, fields)
}

func (tl *testLogger) Error(msg string, fields map[string]interface{}) {
	tl.t.Logf("ERROR: %s %v", msg, fields)
}

func (tl *testLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return tl
}

func (tl *testLogger) WithError(err error) logger.Logger {
	return tl.WithFields(map[string]interface{}{"error": err})
}

func (tl *testLogger) With(fields map[string]interface{}) logger.Logger {
	return tl
}

func newTestLogger(t *testing.T) logger.Logger {
	return &testLogger{t: t}
}

func segmentsForPrefix(perSegment int) map[string]string {
	segments := make(map[string]string)
	for i := 0; i < perSegment; i++ {
		segments[fmt.Sprintf("a-%03d", i)] = "segment-a"
		segments[fmt.Sprintf("b-%03d", i)] = "segment-b"
	}
	return segments
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_FlagsDisparity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT e.user_id, e.status, e.created_at`).
		WillReturnRows(createSampleRows(5))

	directory := &stubDirectory{segments: segmentsForPrefix(5)}
	handler := NewHandler(createTestConfig(), db, directory, &stubAuth{}, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Token: "admin-token"})

	require.NoError(t, err)
	require.NotNil(t, output.Fairness)
	assert.Equal(t, 10, output.SampleCount)
	assert.Len(t, output.Fairness.Segments, 2)

	// segment-a matches always, segment-b never: that gap must be flagged.
	assert.True(t, output.Fairness.Biased)
	require.NotEmpty(t, output.Fairness.Flags)
	var matchRateFlagged bool
	for _, flag := range output.Fairness.Flags {
		if flag.Metric == "matchRate" {
			matchRateFlagged = true
			assert.Equal(t, "segment-a", flag.BestSegment)
			assert.Equal(t, "segment-b", flag.WorstSegment)
		}
	}
	assert.True(t, matchRateFlagged)

	// No experiment configured, so no variant evaluation.
	assert.Nil(t, output.Experiment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_WithExperimentEvaluation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT e.user_id, e.status, e.created_at`).
		WillReturnRows(createSampleRows(3))

	variantRows := sqlmock.NewRows([]string{"match_id", "user_id", "outcome", "variant"})
	for i := 0; i < 20; i++ {
		variantRows.AddRow(fmt.Sprintf("m-%03d", i), fmt.Sprintf("u-%03d", i), "completed", "control")
		variantRows.AddRow(fmt.Sprintf("n-%03d", i), fmt.Sprintf("v-%03d", i), "declined", "variant-1")
	}
	mock.ExpectQuery(`SELECT match_id, user_id, outcome, variant`).
		WillReturnRows(variantRows)

	directory := &stubDirectory{segments: segmentsForPrefix(3)}
	handler := NewHandler(createTestConfig(), db, directory, &stubAuth{}, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Token: "admin-token", Experiment: "scoring-v2"})

	require.NoError(t, err)
	require.NotNil(t, output.Experiment)
	assert.Equal(t, "scoring-v2", output.Experiment.Experiment)
	assert.Len(t, output.Experiment.Variants, 2)
	// Complete separation between variants is significant.
	assert.True(t, output.Experiment.Significant)
}

func TestHandler_Execute_Forbidden(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	auth := &stubAuth{err: stderrors.NewForbiddenError("matching-admin")}
	handler := NewHandler(createTestConfig(), db, &stubDirectory{}, auth, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Token: "user-token"})

	assert.Error(t, err)
	var stdErr *stderrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, stderrors.ErrCodeForbidden, stdErr.Code)
	assert.Nil(t, output)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_NoSegments(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT e.user_id, e.status, e.created_at`).
		WillReturnRows(sqlmock.NewRows(sampleColumns()))

	handler := NewHandler(createTestConfig(), db, &stubDirectory{}, &stubAuth{}, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Token: "admin-token"})

	assert.Error(t, err)
	var stdErr *stderrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, stderrors.ErrCodeNoSegments, stdErr.Code)
	assert.Nil(t, output)
}

func TestHandler_Execute_UnknownSegmentsDropped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT e.user_id, e.status, e.created_at`).
		WillReturnRows(createSampleRows(3))

	// Directory only knows segment-a users.
	segments := make(map[string]string)
	for i := 0; i < 3; i++ {
		segments[fmt.Sprintf("a-%03d", i)] = "segment-a"
	}
	directory := &stubDirectory{segments: segments}
	handler := NewHandler(createTestConfig(), db, directory, &stubAuth{}, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Token: "admin-token"})

	require.NoError(t, err)
	require.Len(t, output.Fairness.Segments, 1)
	assert.Equal(t, "segment-a", output.Fairness.Segments[0].Segment)
	assert.False(t, output.Fairness.Biased)
}

func TestHandler_Execute_DirectoryUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT e.user_id, e.status, e.created_at`).
		WillReturnRows(createSampleRows(3))

	directory := &stubDirectory{err: errors.New("directory down")}
	handler := NewHandler(createTestConfig(), db, directory, &stubAuth{}, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Token: "admin-token"})

	assert.Error(t, err)
	var stdErr *stderrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, stderrors.ErrCodeDirectoryUnavailable, stdErr.Code)
	assert.Nil(t, output)
}
