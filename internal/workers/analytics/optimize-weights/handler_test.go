// internal/workers/analytics/optimize-weights/handler_test.go
package optimizeweights

import (
	"context"
	"encoding/json"
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
		Timeout:           30 * time.Second,
		MinSamples:        10,
		BatchLimit:        1000,
		WeightFloor:       0.05,
		DecisionThreshold: 0.6,
		AdminRole:         "matching-admin",
	}
}

type stubAuth struct {
	err    error
	tokens []string
}

func (s *stubAuth) RequireRole(ctx context.Context, token, role string) error {
	s.tokens = append(s.tokens, token)
	return s.err
}

func outcomeColumns() []string {
	return []string{"match_id", "user_id", "outcome", "features", "weights"}
}

// createOutcomeRows builds n resolved rows where high interest overlap
// tracks success and timezone compatibility is constant.
func createOutcomeRows(t *testing.T, n int) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows(outcomeColumns())
	for i := 0; i < n; i++ {
		outcome := "declined"
		overlap := 0.1
		if i%2 == 0 {
			outcome = "completed"
			overlap = 0.9
		}
		features, err := json.Marshal(models.FeatureVector{
			models.FeatureInterestOverlap: overlap,
			models.FeatureTimezoneCompat:  0.5,
			models.FeatureExperienceGap:   float64(i%4) * 0.25,
		})
		require.NoError(t, err)
		rows.AddRow(fmt.Sprintf("match-%03d", i), fmt.Sprintf("user-%03d", i), outcome, features, []byte(`{}`))
	}
	return rows
}

func expectActiveWeights(t *testing.T, mock sqlmock.Sqlmock, weights models.WeightVector, version int) {
	t.Helper()
	data, err := json.Marshal(weights)
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT weights, version FROM weight_vectors`).
		WillReturnRows(sqlmock.NewRows([]string{"weights", "version"}).AddRow(data, version))
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

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_StoresProposal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectActiveWeights(t, mock, models.DefaultWeights(), 3)

	mock.ExpectQuery(`SELECT match_id, user_id, outcome, features, weights`).
		WithArgs(1000).
		WillReturnRows(createOutcomeRows(t, 20))

	mock.ExpectQuery(`INSERT INTO weight_vectors`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 20, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))

	auth := &stubAuth{}
	handler := NewHandler(createTestConfig(), db, auth, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Token: "admin-token"})

	require.NoError(t, err)
	assert.Equal(t, 4, output.ProposedVersion)
	assert.Equal(t, 20, output.SampleSize)
	assert.NotEmpty(t, output.ProposedAt)
	assert.Equal(t, []string{"admin-token"}, auth.tokens)

	// Proposed weights are a normalized vector over the current features.
	var sum float64
	for _, w := range output.Weights {
		assert.GreaterOrEqual(t, w, 0.05)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_Forbidden(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	auth := &stubAuth{err: stderrors.NewForbiddenError("matching-admin")}
	handler := NewHandler(createTestConfig(), db, auth, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Token: "user-token"})

	assert.Error(t, err)
	var stdErr *stderrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, stderrors.ErrCodeForbidden, stdErr.Code)
	assert.Nil(t, output)
	// Authorization happens before any query.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_InsufficientData(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectActiveWeights(t, mock, models.DefaultWeights(), 1)

	mock.ExpectQuery(`SELECT match_id, user_id, outcome, features, weights`).
		WillReturnRows(createOutcomeRows(t, 3))

	handler := NewHandler(createTestConfig(), db, &stubAuth{}, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Token: "admin-token"})

	assert.Error(t, err)
	var stdErr *stderrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, stderrors.ErrCodeInsufficientData, stdErr.Code)
	assert.Nil(t, output)
}

func TestHandler_Execute_RaisedSampleFloor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectActiveWeights(t, mock, models.DefaultWeights(), 1)

	mock.ExpectQuery(`SELECT match_id, user_id, outcome, features, weights`).
		WillReturnRows(createOutcomeRows(t, 20))

	handler := NewHandler(createTestConfig(), db, &stubAuth{}, newTestLogger(t))

	// 20 rows exist but the caller demanded 50.
	output, err := handler.Execute(context.Background(), &Input{Token: "admin-token", MinSamples: 50})

	assert.Error(t, err)
	var stdErr *stderrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, stderrors.ErrCodeInsufficientData, stdErr.Code)
	assert.Nil(t, output)
}

func TestHandler_Execute_NoActiveWeightsUsesDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT weights, version FROM weight_vectors`).
		WillReturnRows(sqlmock.NewRows([]string{"weights", "version"}))

	mock.ExpectQuery(`SELECT match_id, user_id, outcome, features, weights`).
		WillReturnRows(createOutcomeRows(t, 20))

	mock.ExpectQuery(`INSERT INTO weight_vectors`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

	handler := NewHandler(createTestConfig(), db, &stubAuth{}, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Token: "admin-token"})

	require.NoError(t, err)
	assert.Equal(t, 1, output.ProposedVersion)
	assert.Len(t, output.Weights, len(models.DefaultWeights()))
}

func TestHandler_Execute_QueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectActiveWeights(t, mock, models.DefaultWeights(), 1)

	mock.ExpectQuery(`SELECT match_id, user_id, outcome, features, weights`).
		WillReturnError(errors.New("connection refused"))

	handler := NewHandler(createTestConfig(), db, &stubAuth{}, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Token: "admin-token"})

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueryExecutionFailed))
	assert.Nil(t, output)
}
