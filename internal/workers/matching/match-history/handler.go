// internal/workers/matching/match-history/handler.go
package matchhistory

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
	TaskType = "match-history"
)

var (
	ErrMissingUserID        = errors.New("VALIDATION_FAILED")
	ErrQueryExecutionFailed = errors.New("QUERY_EXECUTION_FAILED")
)

type Handler struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
		if errors.Is(err, ErrMissingUserID) {
			errorCode = "VALIDATION_FAILED"
		} else if errors.Is(err, ErrQueryExecutionFailed) {
			errorCode = "QUERY_EXECUTION_FAILED"
			retries = 3
		}
		h.failJob(client, job, errorCode, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrMissingUserID)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = h.config.DefaultLimit
	}
	if limit > h.config.MaxLimit {
		limit = h.config.MaxLimit
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT match_id, outcome, feedback_rating, feedback_comment, variant, created_at
		FROM matching_analytics
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, input.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: history query failed: %v", ErrQueryExecutionFailed, err)
	}
	defer rows.Close()

	matches := make([]MatchSummary, 0, limit)
	for rows.Next() {
		var (
			summary   MatchSummary
			rating    sql.NullInt64
			comment   sql.NullString
			variant   sql.NullString
			createdAt time.Time
		)
		if err := rows.Scan(
			&summary.MatchID,
			&summary.Outcome,
			&rating,
			&comment,
			&variant,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("%w: history scan failed: %v", ErrQueryExecutionFailed, err)
		}

		if rating.Valid {
			r := int(rating.Int64)
			summary.FeedbackRating = &r
		}
		summary.FeedbackComment = comment.String
		summary.Variant = variant.String
		summary.CreatedAt = createdAt.UTC().Format(time.RFC3339)

		matches = append(matches, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: history iteration failed: %v", ErrQueryExecutionFailed, err)
	}

	h.logger.Info("match history fetched", map[string]interface{}{
		"userId": input.UserID,
		"count":  len(matches),
	})

	return &Output{
		UserID:  input.UserID,
		Matches: matches,
		Count:   len(matches),
	}, nil
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
