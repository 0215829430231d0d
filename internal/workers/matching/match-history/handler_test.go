// internal/workers/matching/match-history/handler_test.go
package matchhistory

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
		Timeout:      10 * time.Second,
		DefaultLimit: 20,
		MaxLimit:     100,
	}
}

func historyColumns() []string {
	return []string{"match_id", "outcome", "feedback_rating", "feedback_comment", "variant", "created_at"}
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

func TestHandler_Execute_ReturnsHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT match_id, outcome, feedback_rating`).
		WithArgs("user-001", 20).
		WillReturnRows(sqlmock.NewRows(historyColumns()).
			AddRow("match-2", "completed", int64(5), "great", "variant-1", now).
			AddRow("match-1", "declined", nil, nil, nil, now.Add(-time.Hour)))

	handler := NewHandler(createTestConfig(), db, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-001"})

	require.NoError(t, err)
	assert.Equal(t, 2, output.Count)
	require.Len(t, output.Matches, 2)

	assert.Equal(t, "match-2", output.Matches[0].MatchID)
	assert.Equal(t, "completed", output.Matches[0].Outcome)
	require.NotNil(t, output.Matches[0].FeedbackRating)
	assert.Equal(t, 5, *output.Matches[0].FeedbackRating)
	assert.Equal(t, "great", output.Matches[0].FeedbackComment)

	assert.Nil(t, output.Matches[1].FeedbackRating)
	assert.Empty(t, output.Matches[1].Variant)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_EmptyHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT match_id, outcome, feedback_rating`).
		WithArgs("user-002", 20).
		WillReturnRows(sqlmock.NewRows(historyColumns()))

	handler := NewHandler(createTestConfig(), db, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-002"})

	require.NoError(t, err)
	assert.Equal(t, 0, output.Count)
	assert.NotNil(t, output.Matches)
	assert.Empty(t, output.Matches)
}

func TestHandler_Execute_LimitClamped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT match_id, outcome, feedback_rating`).
		WithArgs("user-001", 100).
		WillReturnRows(sqlmock.NewRows(historyColumns()))

	handler := NewHandler(createTestConfig(), db, newTestLogger(t))

	_, err = handler.Execute(context.Background(), &Input{UserID: "user-001", Limit: 5000})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
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

	mock.ExpectQuery(`SELECT match_id, outcome, feedback_rating`).
		WillReturnError(errors.New("connection refused"))

	handler := NewHandler(createTestConfig(), db, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-001"})

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueryExecutionFailed))
	assert.Nil(t, output)
}
