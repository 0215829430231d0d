// internal/workers/matching/submit-feedback/handler.go
package submitfeedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"matching-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "submit-feedback"
)

var (
	ErrMatchNotFound        = errors.New("MATCH_NOT_FOUND")
	ErrRatingOutOfRange     = errors.New("RATING_OUT_OF_RANGE")
	ErrMissingField         = errors.New("VALIDATION_FAILED")
	ErrDatabaseUpdateFailed = errors.New("DATABASE_UPDATE_FAILED")
)

// Interfaces for mocking
type analyticsUpdater interface {
	Update(ctx context.Context, index, docID, body string) error
}

type Handler struct {
	config  *Config
	db      *sql.DB
	updater analyticsUpdater
	logger  logger.Logger
}

// NewHandler wires the feedback worker. updater may be nil; the analytics
// mirror is best-effort and only the Postgres row is authoritative.
func NewHandler(config *Config, db *sql.DB, updater analyticsUpdater, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		db:      db,
		updater: updater,
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
		if errors.Is(err, ErrMatchNotFound) {
			errorCode = "MATCH_NOT_FOUND"
		} else if errors.Is(err, ErrRatingOutOfRange) {
			errorCode = "RATING_OUT_OF_RANGE"
		} else if errors.Is(err, ErrMissingField) {
			errorCode = "VALIDATION_FAILED"
		} else if errors.Is(err, ErrDatabaseUpdateFailed) {
			errorCode = "DATABASE_UPDATE_FAILED"
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
	// Validation happens before any write, so an out-of-range rating leaves
	// the analytics row untouched.
	if input.Rating < 1 || input.Rating > 5 {
		return nil, fmt.Errorf("%w: rating %d is outside [1,5]", ErrRatingOutOfRange, input.Rating)
	}

	attachedAt := time.Now().UTC().Format(time.RFC3339)

	// Feedback merges into the existing outcome row; it never creates one.
	result, err := h.db.ExecContext(ctx, `
		UPDATE matching_analytics
		SET feedback_rating = $3, feedback_comment = $4, updated_at = $5
		WHERE match_id = $1 AND user_id = $2`,
		input.MatchID,
		input.UserID,
		input.Rating,
		input.Comment,
		attachedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: feedback update failed: %v", ErrDatabaseUpdateFailed, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: rows affected unavailable: %v", ErrDatabaseUpdateFailed, err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: no outcome recorded for match %s and user %s",
			ErrMatchNotFound, input.MatchID, input.UserID)
	}

	h.mirrorFeedback(ctx, input, attachedAt)

	h.logger.Info("feedback attached", map[string]interface{}{
		"matchId": input.MatchID,
		"userId":  input.UserID,
		"rating":  input.Rating,
	})

	return &Output{
		Attached:   true,
		AttachedAt: attachedAt,
	}, nil
}

// mirrorFeedback copies the rating onto the indexed outcome document so the
// analytics index can serve rating aggregations. Update failures are logged
// and swallowed.
func (h *Handler) mirrorFeedback(ctx context.Context, input *Input, attachedAt string) {
	if h.updater == nil || h.config.AnalyticsIndex == "" {
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"doc": map[string]interface{}{
			"feedbackRating":  input.Rating,
			"feedbackComment": input.Comment,
			"feedbackAt":      attachedAt,
		},
	})
	if err != nil {
		h.logger.Warn("failed to marshal feedback document", map[string]interface{}{
			"error": err,
		})
		return
	}

	docID := input.MatchID + ":" + input.UserID
	if err := h.updater.Update(ctx, h.config.AnalyticsIndex, docID, string(body)); err != nil {
		h.logger.Warn("analytics feedback mirror failed", map[string]interface{}{
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
