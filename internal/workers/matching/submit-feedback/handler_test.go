// internal/workers/matching/submit-feedback/handler_test.go
package submitfeedback

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
		Timeout:        10 * time.Second,
		AnalyticsIndex: "matching-analytics",
	}
}

func createTestInput() *Input {
	return &Input{
		MatchID: "match-001",
		UserID:  "user-001",
		Rating:  4,
		Comment: "great conversation",
	}
}

type stubUpdater struct {
	updated []string
	bodies  []string
	err     error
}

func (s *stubUpdater) Update(ctx context.Context, index, docID, body string) error {
	s.updated = append(s.updated, docID)
	s.bodies = append(s.bodies, body)
	return s.err
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

func TestHandler_Execute_AttachesFeedback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE matching_analytics`).
		WithArgs("match-001", "user-001", 4, "great conversation", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	handler := NewHandler(createTestConfig(), db, nil, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.True(t, output.Attached)
	assert.NotEmpty(t, output.AttachedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_RatingTooHigh(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(createTestConfig(), db, nil, newTestLogger(t))

	input := createTestInput()
	input.Rating = 6

	output, err := handler.Execute(context.Background(), input)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrRatingOutOfRange))
	assert.Nil(t, output)
	// Nothing reached the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_RatingTooLow(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(createTestConfig(), db, nil, newTestLogger(t))

	input := createTestInput()
	input.Rating = 0

	output, err := handler.Execute(context.Background(), input)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrRatingOutOfRange))
	assert.Nil(t, output)
}

func TestHandler_Execute_NoMatchingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE matching_analytics`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	handler := NewHandler(createTestConfig(), db, nil, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrMatchNotFound))
	assert.Nil(t, output)
}

func TestHandler_Execute_MissingUserID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(createTestConfig(), db, nil, newTestLogger(t))

	input := createTestInput()
	input.UserID = ""

	output, err := handler.Execute(context.Background(), input)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.Nil(t, output)
}

func TestHandler_Execute_MirrorsRatingToAnalyticsIndex(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE matching_analytics`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updater := &stubUpdater{}
	handler := NewHandler(createTestConfig(), db, updater, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.True(t, output.Attached)

	// The indexed outcome document picks up the rating so the analytics
	// index can aggregate it.
	require.Equal(t, []string{"match-001:user-001"}, updater.updated)
	assert.Contains(t, updater.bodies[0], `"feedbackRating":4`)
	assert.Contains(t, updater.bodies[0], `"feedbackComment":"great conversation"`)
}

func TestHandler_Execute_MirrorFailureDoesNotFail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE matching_analytics`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updater := &stubUpdater{err: errors.New("es unavailable")}
	handler := NewHandler(createTestConfig(), db, updater, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.True(t, output.Attached)
}

func TestHandler_Execute_UpdateFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE matching_analytics`).
		WillReturnError(errors.New("connection refused"))

	handler := NewHandler(createTestConfig(), db, nil, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatabaseUpdateFailed))
	assert.Nil(t, output)
}
