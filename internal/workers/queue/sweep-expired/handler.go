// internal/workers/queue/sweep-expired/handler.go
package sweepexpired

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
	TaskType = "sweep-expired"
)

var (
	ErrDatabaseUpdateFailed = errors.New("DATABASE_UPDATE_FAILED")
)

type Handler struct {
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		errorCode := "UNKNOWN_ERROR"
		retries := int32(0)
		if errors.Is(err, ErrDatabaseUpdateFailed) {
			errorCode = "DATABASE_UPDATE_FAILED"
			retries = 3
		}
		h.failJob(client, job, errorCode, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

// execute expires overdue waiting entries and repairs orphaned half-matches.
// Both statements are guarded by status, so the sweep is idempotent and a
// concurrent commit always wins over expiry: an entry a selector run just
// moved to matched no longer satisfies the WHERE clause.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	now := input.Now
	if now == 0 {
		now = time.Now().UnixMilli()
	}
	sweptAt := time.UnixMilli(now).UTC().Format(time.RFC3339)

	result, err := h.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = 'expired', updated_at = $2
		WHERE status = 'waiting' AND available_to < $1`,
		now,
		sweptAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: expiry sweep failed: %v", ErrDatabaseUpdateFailed, err)
	}

	expired, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: rows affected unavailable: %v", ErrDatabaseUpdateFailed, err)
	}

	// A half-match cannot be produced by the transactional commit path; this
	// repairs rows left behind by manual interventions or restores. The
	// stranded side goes back to waiting so the selector can try again.
	result, err = h.db.ExecContext(ctx, `
		UPDATE queue_entries e
		SET status = 'waiting', matched_with = NULL, match_id = NULL, updated_at = $1
		WHERE e.status = 'matched'
		  AND NOT EXISTS (
			SELECT 1 FROM queue_entries p
			WHERE p.user_id = e.matched_with
			  AND p.match_id = e.match_id
			  AND p.status = 'matched'
		  )`,
		sweptAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: half-match repair failed: %v", ErrDatabaseUpdateFailed, err)
	}

	repaired, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: rows affected unavailable: %v", ErrDatabaseUpdateFailed, err)
	}

	if repaired > 0 {
		h.logger.Warn("repaired orphaned half-matches", map[string]interface{}{
			"repairedCount": repaired,
		})
	}

	h.logger.Info("expiry sweep complete", map[string]interface{}{
		"expiredCount":  expired,
		"repairedCount": repaired,
		"sweptAt":       sweptAt,
	})

	return &Output{
		ExpiredCount:  expired,
		RepairedCount: repaired,
		SweptAt:       sweptAt,
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
