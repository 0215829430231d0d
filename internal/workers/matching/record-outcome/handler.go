// internal/workers/matching/record-outcome/handler.go
package recordoutcome

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"matching-workers/internal/common/logger"
	"matching-workers/internal/common/metrics"
	"matching-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "record-outcome"
)

var (
	ErrInvalidOutcome       = errors.New("INVALID_OUTCOME")
	ErrMissingField         = errors.New("VALIDATION_FAILED")
	ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")
)

// Interfaces for mocking
type analyticsIndexer interface {
	Index(ctx context.Context, index, docID, body string) error
}

type emailSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

type Handler struct {
	config  *Config
	db      *sql.DB
	indexer analyticsIndexer
	mailer  emailSender
	logger  logger.Logger
}

// NewHandler wires the recorder. indexer and mailer may be nil; both sides
// are best-effort and only the Postgres row is authoritative.
func NewHandler(config *Config, db *sql.DB, indexer analyticsIndexer, mailer emailSender, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		db:      db,
		indexer: indexer,
		mailer:  mailer,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		errorCode := "UNKNOWN_ERROR"
		retries := int32(0)
		if errors.Is(err, ErrInvalidOutcome) {
			errorCode = "INVALID_OUTCOME"
		} else if errors.Is(err, ErrMissingField) {
			errorCode = "VALIDATION_FAILED"
		} else if errors.Is(err, ErrDatabaseInsertFailed) {
			errorCode = "DATABASE_INSERT_FAILED"
			retries = 3
		}
		h.failJob(client, job, errorCode, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.MatchID == "" || input.UserID == "" {
		return nil, fmt.Errorf("%w: matchId and userId are required", ErrMissingField)
	}

	outcome := models.MatchOutcome(input.Outcome)
	if !outcome.Valid() {
		return nil, fmt.Errorf("%w: %q is not a recorded outcome", ErrInvalidOutcome, input.Outcome)
	}

	featuresJSON, err := json.Marshal(input.Features)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal features: %v", ErrDatabaseInsertFailed, err)
	}
	weightsJSON, err := json.Marshal(input.Weights)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal weights: %v", ErrDatabaseInsertFailed, err)
	}

	recordedAt := time.Now().UTC().Format(time.RFC3339)

	// One row per (match, user). Re-recording only moves the outcome
	// forward: the conflict guard ignores a late redelivery of "accepted"
	// once the row resolved to completed or declined, and never touches
	// attached feedback or the scoring-time features and weights.
	_, err = h.db.ExecContext(ctx, `
		INSERT INTO matching_analytics (
			match_id, user_id, outcome, features, weights, variant,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (match_id, user_id)
		DO UPDATE SET outcome = EXCLUDED.outcome, updated_at = EXCLUDED.updated_at
		WHERE matching_analytics.outcome = 'accepted'`,
		input.MatchID,
		input.UserID,
		string(outcome),
		featuresJSON,
		weightsJSON,
		input.Variant,
		recordedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: analytics upsert failed: %v", ErrDatabaseInsertFailed, err)
	}

	metrics.OutcomesRecorded.WithLabelValues(string(outcome)).Inc()

	h.indexOutcome(ctx, input, recordedAt)

	if outcome == models.OutcomeCompleted {
		h.requestFeedback(ctx, input)
	}

	h.logger.Info("outcome recorded", map[string]interface{}{
		"matchId": input.MatchID,
		"userId":  input.UserID,
		"outcome": string(outcome),
	})

	return &Output{
		Recorded:   true,
		RecordedAt: recordedAt,
	}, nil
}

// indexOutcome mirrors the row into Elasticsearch for dashboards. Indexing
// failures are logged and swallowed.
func (h *Handler) indexOutcome(ctx context.Context, input *Input, recordedAt string) {
	if h.indexer == nil || h.config.AnalyticsIndex == "" {
		return
	}

	doc, err := json.Marshal(map[string]interface{}{
		"matchId":    input.MatchID,
		"userId":     input.UserID,
		"outcome":    input.Outcome,
		"variant":    input.Variant,
		"features":   input.Features,
		"recordedAt": recordedAt,
	})
	if err != nil {
		h.logger.Warn("failed to marshal analytics document", map[string]interface{}{
			"error": err,
		})
		return
	}

	docID := input.MatchID + ":" + input.UserID
	if err := h.indexer.Index(ctx, h.config.AnalyticsIndex, docID, string(doc)); err != nil {
		h.logger.Warn("analytics indexing failed", map[string]interface{}{
			"error":   err,
			"matchId": input.MatchID,
		})
	}
}

// requestFeedback emails the user a feedback prompt after a completed
// match. Best-effort: a send failure never fails the job.
func (h *Handler) requestFeedback(ctx context.Context, input *Input) {
	if h.mailer == nil || h.config.FeedbackFromEmail == "" || input.UserEmail == "" {
		return
	}

	subject := "How was your match?"
	body := fmt.Sprintf(
		"Your recent match has been marked as completed. "+
			"Rate it from 1 to 5 and leave a comment to help us improve future matches. "+
			"Reference: %s", input.MatchID)

	_, err := h.mailer.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: []string{input.UserEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(h.config.FeedbackFromEmail),
	})
	if err != nil {
		h.logger.Warn("feedback request email failed", map[string]interface{}{
			"error":   err,
			"matchId": input.MatchID,
		})
	}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	} else {
		h.logger.Info("job completed successfully", map[string]interface{}{
			"jobKey": job.Key,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string, retries int32) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
		"retries":      retries,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
