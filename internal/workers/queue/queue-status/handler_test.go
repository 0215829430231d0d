// internal/workers/queue/queue-status/handler_test.go
package queuestatus

import (
	"context"
	"errors"
	"testing"
	"time"

	"matching-workers/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout:    10 * time.Second,
		CacheTTL:   time.Minute,
		WaitWindow: 24 * time.Hour,
	}
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

func TestHandler_Execute_WaitingEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	mock.ExpectQuery(`SELECT id, status, available_from, available_to`).
		WithArgs("user-001").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "status", "available_from", "available_to", "matched_with", "match_id"}).
			AddRow("entry-1", "waiting", int64(1700000000000), int64(1700003600000), nil, nil))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM queue_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))

	// Cached wait estimate
	redisMock.ExpectGet(waitEstimateCacheKey).SetVal("90000")

	handler := NewHandler(createTestConfig(), db, redisClient, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-001"})

	require.NoError(t, err)
	assert.Equal(t, "entry-1", output.EntryID)
	assert.Equal(t, "waiting", output.Status)
	assert.Equal(t, int64(4), output.QueueDepth)
	assert.Equal(t, int64(90000), output.EstimatedWaitMs)
	assert.Empty(t, output.MatchedWith)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestHandler_Execute_CacheMissComputesEstimate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	mock.ExpectQuery(`SELECT id, status, available_from, available_to`).
		WithArgs("user-001").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "status", "available_from", "available_to", "matched_with", "match_id"}).
			AddRow("entry-1", "waiting", int64(1700000000000), int64(1700003600000), nil, nil))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM queue_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	redisMock.ExpectGet(waitEstimateCacheKey).RedisNil()
	mock.ExpectQuery(`SELECT COALESCE`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(float64(125000)))
	redisMock.ExpectSet(waitEstimateCacheKey, "125000", time.Minute).SetVal("OK")

	handler := NewHandler(createTestConfig(), db, redisClient, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-001"})

	require.NoError(t, err)
	assert.Equal(t, int64(125000), output.EstimatedWaitMs)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestHandler_Execute_MatchedEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	mock.ExpectQuery(`SELECT id, status, available_from, available_to`).
		WithArgs("user-001").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "status", "available_from", "available_to", "matched_with", "match_id"}).
			AddRow("entry-1", "matched", int64(1700000000000), int64(1700003600000), "user-002", "match-9"))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM queue_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	redisMock.ExpectGet(waitEstimateCacheKey).SetVal("60000")

	handler := NewHandler(createTestConfig(), db, redisClient, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-001"})

	require.NoError(t, err)
	assert.Equal(t, "matched", output.Status)
	assert.Equal(t, "user-002", output.MatchedWith)
	assert.Equal(t, "match-9", output.MatchID)
}

func TestHandler_Execute_NoEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, _ := redismock.NewClientMock()

	mock.ExpectQuery(`SELECT id, status, available_from, available_to`).
		WithArgs("user-404").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "status", "available_from", "available_to", "matched_with", "match_id"}))

	handler := NewHandler(createTestConfig(), db, redisClient, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-404"})

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrEntryNotFound))
	assert.Nil(t, output)
}

func TestHandler_Execute_EstimateFailureDegradesToZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	mock.ExpectQuery(`SELECT id, status, available_from, available_to`).
		WithArgs("user-001").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "status", "available_from", "available_to", "matched_with", "match_id"}).
			AddRow("entry-1", "waiting", int64(1700000000000), int64(1700003600000), nil, nil))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM queue_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	redisMock.ExpectGet(waitEstimateCacheKey).RedisNil()
	mock.ExpectQuery(`SELECT COALESCE`).
		WillReturnError(errors.New("connection refused"))

	handler := NewHandler(createTestConfig(), db, redisClient, newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "user-001"})

	require.NoError(t, err)
	assert.Equal(t, int64(0), output.EstimatedWaitMs)
}
