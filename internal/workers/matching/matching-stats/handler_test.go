// internal/workers/matching/matching-stats/handler_test.go
package matchingstats

import (
	"context"
	"errors"
	"testing"
	"time"

	"matching-workers/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}

func statsColumns() []string {
	return []string{"count", "accepted", "completed", "declined", "avg"}
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

func TestHandler_Execute_ComputesStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)`).
		WithArgs("user-001").
		WillReturnRows(sqlmock.NewRows(statsColumns()).
			AddRow(int64(10), int64(2), int64(6), int64(2), float64(4.25)))

	handler := NewHandler(createTestConfig(), db, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-001"})

	require.NoError(t, err)
	assert.Equal(t, int64(10), output.TotalMatches)
	assert.Equal(t, int64(2), output.Accepted)
	assert.Equal(t, int64(6), output.Completed)
	assert.Equal(t, int64(2), output.Declined)
	assert.InDelta(t, 0.75, output.SuccessRate, 1e-9)
	assert.InDelta(t, 4.25, output.AvgRating, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_NoMatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)`).
		WithArgs("user-002").
		WillReturnRows(sqlmock.NewRows(statsColumns()).
			AddRow(int64(0), int64(0), int64(0), int64(0), nil))

	handler := NewHandler(createTestConfig(), db, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-002"})

	require.NoError(t, err)
	assert.Equal(t, int64(0), output.TotalMatches)
	assert.Zero(t, output.SuccessRate)
	assert.Zero(t, output.AvgRating)
}

func TestHandler_Execute_UnresolvedOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// All matches still accepted: no success rate yet.
	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)`).
		WithArgs("user-003").
		WillReturnRows(sqlmock.NewRows(statsColumns()).
			AddRow(int64(3), int64(3), int64(0), int64(0), nil))

	handler := NewHandler(createTestConfig(), db, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-003"})

	require.NoError(t, err)
	assert.Equal(t, int64(3), output.TotalMatches)
	assert.Zero(t, output.SuccessRate)
}

func TestHandler_Execute_MissingUserID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(createTestConfig(), db, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{})

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingUserID))
	assert.Nil(t, output)
}

func TestHandler_Execute_QueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)`).
		WillReturnError(errors.New("connection refused"))

	handler := NewHandler(createTestConfig(), db, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-001"})

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueryExecutionFailed))
	assert.Nil(t, output)
}
