// internal/workers/queue/enroll-user/handler.go
package enrolluser

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"matching-workers/internal/common/logger"
	"matching-workers/internal/common/validation"
	"matching-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	TaskType = "enroll-user"
)

var (
	ErrAlreadyQueued        = errors.New("ALREADY_QUEUED")
	ErrInvalidWindow        = errors.New("INVALID_WINDOW")
	ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")
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
		if errors.Is(err, ErrAlreadyQueued) {
			errorCode = "ALREADY_QUEUED"
		} else if errors.Is(err, ErrInvalidWindow) {
			errorCode = "INVALID_WINDOW"
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
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidWindow)
	}
	if err := validation.ValidateWindow(input.AvailableFrom, input.AvailableTo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}

	// Check for an existing waiting entry
	var exists bool
	err := h.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM queue_entries
			WHERE user_id = $1 AND status = 'waiting'
		)`, input.UserID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting-entry check failed: %v", ErrDatabaseInsertFailed, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: user %s already has a waiting entry", ErrAlreadyQueued, input.UserID)
	}

	entryID := uuid.New().String()
	createdAt := time.Now().UTC().Format(time.RFC3339)

	constraintsJSON, err := json.Marshal(input.Constraints)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal constraints: %v", ErrDatabaseInsertFailed, err)
	}

	// The partial unique index on queue_entries(user_id) WHERE status =
	// 'waiting' closes the race between the check above and this insert.
	_, err = h.db.ExecContext(ctx, `
		INSERT INTO queue_entries (
			id, user_id, status, available_from, available_to,
			constraints, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		entryID,
		input.UserID,
		string(models.QueueStatusWaiting),
		input.AvailableFrom,
		input.AvailableTo,
		constraintsJSON,
		createdAt,
	)
	if err != nil {
		// A concurrent enroll that won the race trips the unique index;
		// that is a duplicate enrollment, not a retryable database fault.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: user %s already has a waiting entry", ErrAlreadyQueued, input.UserID)
		}
		return nil, fmt.Errorf("%w: insert failed: %v", ErrDatabaseInsertFailed, err)
	}

	// Create audit log entry (non-critical, log error but don't fail)
	auditDetailsJSON, err := json.Marshal(map[string]interface{}{
		"userId":        input.UserID,
		"availableFrom": input.AvailableFrom,
		"availableTo":   input.AvailableTo,
	})
	if err != nil {
		h.logger.Warn("failed to marshal audit log details", map[string]interface{}{
			"error": err,
		})
		auditDetailsJSON = []byte("{}")
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		"queue_entry_created",
		"queue_entry",
		entryID,
		auditDetailsJSON,
		createdAt,
	)
	if err != nil {
		h.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":   err,
			"entryId": entryID,
		})
	}

	h.logger.Info("queue entry created", map[string]interface{}{
		"entryId":       entryID,
		"userId":        input.UserID,
		"availableFrom": input.AvailableFrom,
		"availableTo":   input.AvailableTo,
	})

	return &Output{
		EntryID:   entryID,
		Status:    string(models.QueueStatusWaiting),
		CreatedAt: createdAt,
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
