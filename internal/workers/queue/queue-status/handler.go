// internal/workers/queue/queue-status/handler.go
package queuestatus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"matching-workers/internal/common/logger"
	"matching-workers/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
)

const (
	TaskType = "queue-status"

	waitEstimateCacheKey = "queue:wait-estimate"
)

var (
	ErrEntryNotFound       = errors.New("ENTRY_NOT_FOUND")
	ErrQueryExecutionFailed = errors.New("QUERY_EXECUTION_FAILED")
)

type Handler struct {
	config *Config
	db     *sql.DB
	redis  *redis.Client
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, redisClient *redis.Client, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		redis:  redisClient,
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
		if errors.Is(err, ErrEntryNotFound) {
			errorCode = "ENTRY_NOT_FOUND"
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
		return nil, fmt.Errorf("%w: userId is required", ErrEntryNotFound)
	}

	var (
		output      Output
		matchedWith sql.NullString
		matchID     sql.NullString
	)
	err := h.db.QueryRowContext(ctx, `
		SELECT id, status, available_from, available_to, matched_with, match_id
		FROM queue_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, input.UserID).Scan(
		&output.EntryID,
		&output.Status,
		&output.AvailableFrom,
		&output.AvailableTo,
		&matchedWith,
		&matchID,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no queue entry for user %s", ErrEntryNotFound, input.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: entry lookup failed: %v", ErrQueryExecutionFailed, err)
	}
	output.MatchedWith = matchedWith.String
	output.MatchID = matchID.String

	if err := h.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_entries WHERE status = 'waiting'`).Scan(&output.QueueDepth); err != nil {
		return nil, fmt.Errorf("%w: depth query failed: %v", ErrQueryExecutionFailed, err)
	}
	metrics.QueueDepth.WithLabelValues("waiting").Set(float64(output.QueueDepth))

	estimate, err := h.waitEstimate(ctx)
	if err != nil {
		// The estimate is advisory; a failed computation degrades to 0
		// rather than failing the status call.
		h.logger.Warn("wait estimate unavailable", map[string]interface{}{
			"error": err,
		})
		estimate = 0
	}
	output.EstimatedWaitMs = estimate

	h.logger.Info("queue status resolved", map[string]interface{}{
		"userId":     input.UserID,
		"status":     output.Status,
		"queueDepth": output.QueueDepth,
	})

	return &output, nil
}

// waitEstimate returns the average enrollment-to-match duration over the
// configured window. The value is shared across all users, so it lives in
// Redis behind a short TTL instead of being recomputed per status call.
func (h *Handler) waitEstimate(ctx context.Context) (int64, error) {
	if val, err := h.redis.Get(ctx, waitEstimateCacheKey).Result(); err == nil {
		if ms, parseErr := strconv.ParseInt(val, 10, 64); parseErr == nil {
			return ms, nil
		}
	}

	cutoff := time.Now().UTC().Add(-h.config.WaitWindow).Format(time.RFC3339)

	var avgMs float64
	err := h.db.QueryRowContext(ctx, `
		SELECT COALESCE(EXTRACT(EPOCH FROM AVG(updated_at::timestamptz - created_at::timestamptz)) * 1000, 0)
		FROM queue_entries
		WHERE status = 'matched' AND updated_at >= $1`, cutoff).Scan(&avgMs)
	if err != nil {
		return 0, fmt.Errorf("estimate query failed: %w", err)
	}

	ms := int64(avgMs)
	h.redis.Set(ctx, waitEstimateCacheKey, strconv.FormatInt(ms, 10), h.config.CacheTTL)

	return ms, nil
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
