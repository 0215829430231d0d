// internal/workers/queue/withdraw-user/handler.go
package withdrawuser

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
	TaskType = "withdraw-user"
)

var (
	ErrDatabaseUpdateFailed = errors.New("DATABASE_UPDATE_FAILED")
	ErrMissingUserID        = errors.New("VALIDATION_FAILED")
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		errorCode := "UNKNOWN_ERROR"
		retries := int32(0)
		if errors.Is(err, ErrMissingUserID) {
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

// execute cancels the user's waiting entry. Withdrawing without a waiting
// entry is a no-op, not an error: the caller only cares that the user is no
// longer queued afterwards.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrMissingUserID)
	}

	withdrawnAt := time.Now().UTC().Format(time.RFC3339)

	result, err := h.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = 'cancelled', updated_at = $2
		WHERE user_id = $1 AND status = 'waiting'`,
		input.UserID,
		withdrawnAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: cancel failed: %v", ErrDatabaseUpdateFailed, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: rows affected unavailable: %v", ErrDatabaseUpdateFailed, err)
	}

	if affected == 0 {
		h.logger.Info("no waiting entry to withdraw", map[string]interface{}{
			"userId": input.UserID,
		})
		return &Output{Withdrawn: false}, nil
	}

	// Create audit log entry (non-critical, log error but don't fail)
	auditDetailsJSON, _ := json.Marshal(map[string]interface{}{
		"userId": input.UserID,
	})
	_, err = h.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		"queue_entry_cancelled",
		"queue_entry",
		input.UserID,
		auditDetailsJSON,
		withdrawnAt,
	)
	if err != nil {
		h.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":  err,
			"userId": input.UserID,
		})
	}

	h.logger.Info("queue entry cancelled", map[string]interface{}{
		"userId": input.UserID,
	})

	return &Output{
		Withdrawn:   true,
		WithdrawnAt: withdrawnAt,
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
