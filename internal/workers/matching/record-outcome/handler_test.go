// internal/workers/matching/record-outcome/handler_test.go
package recordoutcome

import (
	"context"
	"errors"
	"testing"
	"time"

	"matching-workers/internal/common/logger"
	"matching-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout:           10 * time.Second,
		AnalyticsIndex:    "matching-analytics",
		FeedbackFromEmail: "matching@example.com",
	}
}

func createTestInput() *Input {
	return &Input{
		MatchID: "match-001",
		UserID:  "user-001",
		Outcome: "completed",
		Features: models.FeatureVector{
			models.FeatureInterestOverlap: 0.5,
		},
		Weights:   models.DefaultWeights(),
		Variant:   "control",
		UserEmail: "user@example.com",
	}
}

type stubIndexer struct {
	indexed []string
	err     error
}

func (s *stubIndexer) Index(ctx context.Context, index, docID, body string) error {
	s.indexed = append(s.indexed, docID)
	return s.err
}

type stubMailer struct {
	sent []*ses.SendEmailInput
	err  error
}

func (s *stubMailer) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	s.sent = append(s.sent, input)
	if s.err != nil {
		return nil, s.err
	}
	return &ses.SendEmailOutput{}, nil
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

func TestHandler_Execute_RecordsCompletedOutcome(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO matching_analytics`).
		WithArgs("match-001", "user-001", "completed",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "control", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	indexer := &stubIndexer{}
	mailer := &stubMailer{}
	handler := NewHandler(createTestConfig(), db, indexer, mailer, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.True(t, output.Recorded)
	assert.NotEmpty(t, output.RecordedAt)

	// Mirrored to Elasticsearch and feedback requested.
	assert.Equal(t, []string{"match-001:user-001"}, indexer.indexed)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"user@example.com"}, mailer.sent[0].Destination.ToAddresses)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_AcceptedOutcomeSendsNoEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO matching_analytics`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mailer := &stubMailer{}
	handler := NewHandler(createTestConfig(), db, &stubIndexer{}, mailer, newTestLogger(t))

	input := createTestInput()
	input.Outcome = "accepted"

	output, err := handler.Execute(context.Background(), input)

	require.NoError(t, err)
	assert.True(t, output.Recorded)
	assert.Empty(t, mailer.sent)
}

func TestHandler_Execute_StaleRedeliveryKeepsResolvedOutcome(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The conflict clause only updates rows still at "accepted", so a
	// redelivered "accepted" arriving after the row resolved to completed
	// or declined touches zero rows and still reports success.
	mock.ExpectExec(`WHERE matching_analytics\.outcome = 'accepted'`).
		WithArgs("match-001", "user-001", "accepted",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "control", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	handler := NewHandler(createTestConfig(), db, &stubIndexer{}, &stubMailer{}, newTestLogger(t))

	input := createTestInput()
	input.Outcome = "accepted"

	output, err := handler.Execute(context.Background(), input)

	require.NoError(t, err)
	assert.True(t, output.Recorded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_InvalidOutcome(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(createTestConfig(), db, &stubIndexer{}, &stubMailer{}, newTestLogger(t))

	input := createTestInput()
	input.Outcome = "ghosted"

	output, err := handler.Execute(context.Background(), input)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidOutcome))
	assert.Nil(t, output)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_MissingMatchID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(createTestConfig(), db, &stubIndexer{}, &stubMailer{}, newTestLogger(t))

	input := createTestInput()
	input.MatchID = ""

	output, err := handler.Execute(context.Background(), input)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.Nil(t, output)
}

func TestHandler_Execute_UpsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO matching_analytics`).
		WillReturnError(errors.New("connection refused"))

	handler := NewHandler(createTestConfig(), db, &stubIndexer{}, &stubMailer{}, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatabaseInsertFailed))
	assert.Nil(t, output)
}

func TestHandler_Execute_IndexAndEmailFailuresDoNotFail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO matching_analytics`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	indexer := &stubIndexer{err: errors.New("es unavailable")}
	mailer := &stubMailer{err: errors.New("ses unavailable")}
	handler := NewHandler(createTestConfig(), db, indexer, mailer, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.True(t, output.Recorded)
}

func TestHandler_Execute_NilCollaborators(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO matching_analytics`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	handler := NewHandler(createTestConfig(), db, nil, nil, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.True(t, output.Recorded)
}
