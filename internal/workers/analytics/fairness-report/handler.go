// internal/workers/analytics/fairness-report/handler.go
package fairnessreport

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stderrors "matching-workers/internal/common/errors"
	"matching-workers/internal/common/logger"
	"matching-workers/internal/matching"
	"matching-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "fairness-report"
)

var (
	ErrQueryExecutionFailed = errors.New("QUERY_EXECUTION_FAILED")
)

// Interfaces for mocking
type roleChecker interface {
	RequireRole(ctx context.Context, token, role string) error
}

type profileSource interface {
	GetProfiles(ctx context.Context, userIDs []string) (map[string]*models.ScoringProfile, error)
}

type Handler struct {
	config    *Config
	db        *sql.DB
	directory profileSource
	auth      roleChecker
	logger    logger.Logger
}

func NewHandler(config *Config, db *sql.DB, directory profileSource, auth roleChecker, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		db:        db,
		directory: directory,
		auth:      auth,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
		}
		h.failJob(client, job, errorCode, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := h.auth.RequireRole(ctx, input.Token, h.config.AdminRole); err != nil {
		return nil, err
	}

	since := time.Now().UTC().Add(-h.config.Window)

	samples, err := h.collectSamples(ctx, since)
	if err != nil {
		return nil, err
	}

	report, err := matching.BuildFairnessReport(samples, matching.FairnessConfig{
		DisparityThreshold: h.config.DisparityThreshold,
		MinSegmentSize:     h.config.MinSegmentSize,
	})
	if err != nil {
		return nil, err
	}

	output := &Output{
		Fairness:    report,
		SampleCount: len(samples),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	experiment := input.Experiment
	if experiment == "" {
		experiment = h.config.Experiment
	}
	if experiment != "" {
		rows, err := h.loadVariantRows(ctx, since)
		if err != nil {
			return nil, err
		}
		output.Experiment = matching.EvaluateExperiment(experiment, rows, h.config.SignificanceZ)
	}

	h.logger.Info("fairness report generated", map[string]interface{}{
		"samples":  len(samples),
		"segments": len(report.Segments),
		"flags":    len(report.Flags),
		"biased":   report.Biased,
	})

	return output, nil
}

// collectSamples joins queue entries with their outcome rows and resolves
// each user's demographic segment through the directory.
func (h *Handler) collectSamples(ctx context.Context, since time.Time) ([]matching.FairnessSample, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT e.user_id, e.status, e.created_at, e.updated_at, a.outcome, a.feedback_rating
		FROM queue_entries e
		LEFT JOIN matching_analytics a
			ON a.match_id = e.match_id AND a.user_id = e.user_id
		WHERE e.created_at >= $1`, since.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("%w: sample query failed: %v", ErrQueryExecutionFailed, err)
	}
	defer rows.Close()

	type pending struct {
		userID  string
		matched bool
		waitMs  int64
		outcome models.MatchOutcome
		rating  *int
	}

	var collected []pending
	seen := make(map[string]bool)
	var userIDs []string

	for rows.Next() {
		var (
			p         pending
			status    string
			createdAt time.Time
			updatedAt time.Time
			outcome   sql.NullString
			rating    sql.NullInt64
		)
		if err := rows.Scan(&p.userID, &status, &createdAt, &updatedAt, &outcome, &rating); err != nil {
			return nil, fmt.Errorf("%w: sample scan failed: %v", ErrQueryExecutionFailed, err)
		}

		p.matched = status == string(models.QueueStatusMatched)
		if p.matched {
			p.waitMs = updatedAt.Sub(createdAt).Milliseconds()
		}
		if outcome.Valid {
			p.outcome = models.MatchOutcome(outcome.String)
		}
		if rating.Valid {
			r := int(rating.Int64)
			p.rating = &r
		}

		collected = append(collected, p)
		if !seen[p.userID] {
			seen[p.userID] = true
			userIDs = append(userIDs, p.userID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sample iteration failed: %v", ErrQueryExecutionFailed, err)
	}

	if len(collected) == 0 {
		return nil, nil
	}

	profiles, err := h.directory.GetProfiles(ctx, userIDs)
	if err != nil {
		return nil, stderrors.NewDirectoryUnavailableError(err)
	}

	samples := make([]matching.FairnessSample, 0, len(collected))
	for _, p := range collected {
		segment := ""
		if profile, ok := profiles[p.userID]; ok {
			segment = profile.Segment
		}
		// Users without a known segment are dropped downstream.
		samples = append(samples, matching.FairnessSample{
			Segment: segment,
			Matched: p.matched,
			WaitMs:  p.waitMs,
			Outcome: p.outcome,
			Rating:  p.rating,
		})
	}

	return samples, nil
}

func (h *Handler) loadVariantRows(ctx context.Context, since time.Time) ([]models.AnalyticsRow, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT match_id, user_id, outcome, variant
		FROM matching_analytics
		WHERE variant IS NOT NULL AND variant != '' AND created_at >= $1`,
		since.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("%w: variant query failed: %v", ErrQueryExecutionFailed, err)
	}
	defer rows.Close()

	var result []models.AnalyticsRow
	for rows.Next() {
		var row models.AnalyticsRow
		if err := rows.Scan(&row.MatchID, &row.UserID, &row.Outcome, &row.Variant); err != nil {
			return nil, fmt.Errorf("%w: variant scan failed: %v", ErrQueryExecutionFailed, err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: variant iteration failed: %v", ErrQueryExecutionFailed, err)
	}

	return result, nil
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
