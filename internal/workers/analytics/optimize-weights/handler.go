// internal/workers/analytics/optimize-weights/handler.go
package optimizeweights

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stderrors "matching-workers/internal/common/errors"
	"matching-workers/internal/common/logger"
	"matching-workers/internal/common/metrics"
	"matching-workers/internal/matching"
	"matching-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "optimize-weights"
)

var (
	ErrQueryExecutionFailed = errors.New("QUERY_EXECUTION_FAILED")
	ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")
)

// Interface for mocking
type roleChecker interface {
	RequireRole(ctx context.Context, token, role string) error
}

type Handler struct {
	config *Config
	db     *sql.DB
	auth   roleChecker
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, auth roleChecker, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		auth:   auth,
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
		var stdErr *stderrors.StandardError
		if errors.As(err, &stdErr) {
			errorCode = string(stdErr.Code)
			retries = int32(stderrors.GetRetryCount(stdErr.Code))
		} else if errors.Is(err, ErrQueryExecutionFailed) {
			errorCode = "QUERY_EXECUTION_FAILED"
			retries = 3
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
	if err := h.auth.RequireRole(ctx, input.Token, h.config.AdminRole); err != nil {
		metrics.WeightOptimizations.WithLabelValues("rejected").Inc()
		return nil, err
	}

	minSamples := h.config.MinSamples
	if input.MinSamples > minSamples {
		minSamples = input.MinSamples
	}

	current, currentVersion, err := h.activeWeights(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := h.loadResolvedOutcomes(ctx)
	if err != nil {
		return nil, err
	}

	result, err := matching.Optimize(rows, current, matching.OptimizerConfig{
		MinSamples:        minSamples,
		WeightFloor:       h.config.WeightFloor,
		DecisionThreshold: h.config.DecisionThreshold,
	})
	if err != nil {
		metrics.WeightOptimizations.WithLabelValues("insufficient_data").Inc()
		return nil, err
	}

	version, proposedAt, err := h.storeProposal(ctx, result)
	if err != nil {
		return nil, err
	}

	metrics.WeightOptimizations.WithLabelValues("proposed").Inc()

	h.logger.Info("weight proposal stored", map[string]interface{}{
		"proposedVersion": version,
		"currentVersion":  currentVersion,
		"sampleSize":      result.SampleSize,
		"improvement":     result.Improvement,
	})

	return &Output{
		ProposedVersion: version,
		Weights:         result.Weights,
		Improvement:     result.Improvement,
		SampleSize:      result.SampleSize,
		ProposedAt:      proposedAt,
	}, nil
}

// activeWeights loads the production vector the proposal is measured
// against, falling back to the bootstrap defaults before first promotion.
func (h *Handler) activeWeights(ctx context.Context) (models.WeightVector, int, error) {
	var (
		weightsJSON []byte
		version     int
	)
	err := h.db.QueryRowContext(ctx, `
		SELECT weights, version FROM weight_vectors
		WHERE status = 'active'
		ORDER BY version DESC
		LIMIT 1`).Scan(&weightsJSON, &version)
	if err == sql.ErrNoRows {
		return models.DefaultWeights(), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: active weights lookup failed: %v", ErrQueryExecutionFailed, err)
	}

	var weights models.WeightVector
	if err := json.Unmarshal(weightsJSON, &weights); err != nil || len(weights) == 0 {
		h.logger.Warn("unreadable active weights, using defaults", map[string]interface{}{
			"version": version,
			"error":   err,
		})
		return models.DefaultWeights(), version, nil
	}

	return weights, version, nil
}

func (h *Handler) loadResolvedOutcomes(ctx context.Context) ([]models.AnalyticsRow, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT match_id, user_id, outcome, features, weights
		FROM matching_analytics
		WHERE outcome IN ('completed', 'declined')
		ORDER BY created_at DESC
		LIMIT $1`, h.config.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: outcome batch query failed: %v", ErrQueryExecutionFailed, err)
	}
	defer rows.Close()

	var batch []models.AnalyticsRow
	for rows.Next() {
		var (
			row          models.AnalyticsRow
			featuresJSON []byte
			weightsJSON  []byte
		)
		if err := rows.Scan(&row.MatchID, &row.UserID, &row.Outcome, &featuresJSON, &weightsJSON); err != nil {
			return nil, fmt.Errorf("%w: outcome scan failed: %v", ErrQueryExecutionFailed, err)
		}

		if err := json.Unmarshal(featuresJSON, &row.Features); err != nil {
			h.logger.Warn("unreadable features, skipping row", map[string]interface{}{
				"matchId": row.MatchID,
				"error":   err,
			})
			continue
		}
		if len(weightsJSON) > 0 {
			if err := json.Unmarshal(weightsJSON, &row.Weights); err != nil {
				row.Weights = nil
			}
		}

		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: outcome iteration failed: %v", ErrQueryExecutionFailed, err)
	}

	return batch, nil
}

// storeProposal appends the proposed vector as the next version in proposed
// state. The active vector is untouched.
func (h *Handler) storeProposal(ctx context.Context, result *matching.OptimizeResult) (int, string, error) {
	weightsJSON, err := json.Marshal(result.Weights)
	if err != nil {
		return 0, "", fmt.Errorf("%w: failed to marshal proposed weights: %v", ErrDatabaseInsertFailed, err)
	}

	proposedAt := time.Now().UTC().Format(time.RFC3339)

	var version int
	err = h.db.QueryRowContext(ctx, `
		INSERT INTO weight_vectors (version, weights, status, improvement, sample_size, created_at)
		SELECT COALESCE(MAX(version), 0) + 1, $1, 'proposed', $2, $3, $4
		FROM weight_vectors
		RETURNING version`,
		weightsJSON,
		result.Improvement,
		result.SampleSize,
		proposedAt,
	).Scan(&version)
	if err != nil {
		return 0, "", fmt.Errorf("%w: proposal insert failed: %v", ErrDatabaseInsertFailed, err)
	}

	return version, proposedAt, nil
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
