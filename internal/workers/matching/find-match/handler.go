// internal/workers/matching/find-match/handler.go
package findmatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"matching-workers/internal/common/logger"
	"matching-workers/internal/common/metrics"
	"matching-workers/internal/matching"
	"matching-workers/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	TaskType = "find-match"

	weightsCacheKey    = "weights:active"
	profileCachePrefix = "profile:"
)

var (
	ErrEntryNotFound        = errors.New("ENTRY_NOT_FOUND")
	ErrCommitConflict       = errors.New("COMMIT_CONFLICT")
	ErrDirectoryUnavailable = errors.New("DIRECTORY_UNAVAILABLE")
	ErrQueryExecutionFailed = errors.New("QUERY_EXECUTION_FAILED")
)

// profileSource abstracts the user-directory client.
type profileSource interface {
	GetProfiles(ctx context.Context, userIDs []string) (map[string]*models.ScoringProfile, error)
}

// matchNotifier abstracts the SNS publish used for the match-created event.
type matchNotifier interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

type Handler struct {
	config    *Config
	db        *sql.DB
	redis     *redis.Client
	directory profileSource
	notifier  matchNotifier
	logger    logger.Logger
}

func NewHandler(config *Config, db *sql.DB, redisClient *redis.Client, directory profileSource, notifier matchNotifier, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		db:        db,
		redis:     redisClient,
		directory: directory,
		notifier:  notifier,
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
		if errors.Is(err, ErrEntryNotFound) {
			errorCode = "ENTRY_NOT_FOUND"
		} else if errors.Is(err, ErrCommitConflict) {
			errorCode = "COMMIT_CONFLICT"
			retries = 1
		} else if errors.Is(err, ErrDirectoryUnavailable) {
			errorCode = "DIRECTORY_UNAVAILABLE"
			retries = 3
		} else if errors.Is(err, ErrQueryExecutionFailed) {
			errorCode = "QUERY_EXECUTION_FAILED"
			retries = 3
		}
		h.failJob(client, job, errorCode, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

// execute scans eligible candidates for the requester, scores them with the
// active weight vector and commits the best pairing transactionally. A
// selection pass that finds nobody above the threshold is a valid result,
// the entry simply stays waiting.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrEntryNotFound)
	}

	entry, err := h.loadWaitingEntry(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	candidates, err := h.listEligible(ctx, entry, now)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		h.logger.Info("no eligible candidates", map[string]interface{}{
			"userId": input.UserID,
		})
		return &Output{Matched: false}, nil
	}

	weights := h.activeWeights(ctx)

	profiles, err := h.loadProfiles(ctx, entry, candidates)
	if err != nil {
		return nil, err
	}
	requesterProfile, ok := profiles[entry.UserID]
	if !ok {
		return nil, fmt.Errorf("%w: requester profile missing for %s", ErrDirectoryUnavailable, entry.UserID)
	}

	variant := ""
	if h.config.Experiment != "" {
		variant = matching.AssignVariant(h.config.Experiment, entry.UserID, h.config.Variants)
	}

	// Candidates arrive oldest-first; requiring a strictly higher score
	// makes the tie-break oldest-waiting-first to bound starvation.
	var (
		best         *models.QueueEntry
		bestScore    float64
		bestFeatures models.CompatibilityFeatures
		bestExplain  []string
	)
	for i := range candidates {
		candidate := &candidates[i]

		profile, ok := profiles[candidate.UserID]
		if !ok {
			// Downstream unavailability degrades to skipping this one
			// candidate, never to failing the whole pass.
			h.logger.Warn("candidate profile unavailable, skipping", map[string]interface{}{
				"candidateId": candidate.UserID,
			})
			continue
		}

		features := matching.ExtractFeatures(requesterProfile, profile)
		score, explanations := matching.Score(features, weights)

		if best == nil || score > bestScore {
			best = candidate
			bestScore = score
			bestFeatures = features
			bestExplain = explanations
		}
	}

	if best == nil || bestScore < h.config.MinScore {
		h.logger.Info("no candidate above threshold", map[string]interface{}{
			"userId":    input.UserID,
			"minScore":  h.config.MinScore,
			"bestScore": bestScore,
		})
		return &Output{Matched: false}, nil
	}

	matchID := uuid.New().String()
	matchedAt := time.Now().UTC().Format(time.RFC3339)

	if err := h.commitPair(ctx, entry.UserID, best.UserID, matchID, matchedAt); err != nil {
		return nil, err
	}

	result := &models.MatchResult{
		MatchID:      matchID,
		UserID:       entry.UserID,
		CandidateID:  best.UserID,
		Score:        bestScore,
		Features:     bestFeatures,
		Explanations: bestExplain,
		Variant:      variant,
	}

	h.notifyMatchCreated(ctx, result)
	h.writeAuditLog(ctx, result, matchedAt)

	metrics.MatchesCommitted.WithLabelValues(variantLabel(variant)).Inc()
	metrics.MatchScore.WithLabelValues(variantLabel(variant)).Observe(bestScore)

	h.logger.Info("pair committed", map[string]interface{}{
		"matchId":     matchID,
		"userId":      entry.UserID,
		"candidateId": best.UserID,
		"score":       bestScore,
		"variant":     variant,
	})

	return &Output{
		Matched:      true,
		MatchID:      matchID,
		CandidateID:  best.UserID,
		Score:        bestScore,
		Explanations: bestExplain,
		Variant:      variant,
		Features:     bestFeatures.Values,
		Weights:      weights,
		MatchedAt:    matchedAt,
	}, nil
}

func (h *Handler) loadWaitingEntry(ctx context.Context, userID string) (*models.QueueEntry, error) {
	var (
		entry           models.QueueEntry
		constraintsJSON []byte
	)
	err := h.db.QueryRowContext(ctx, `
		SELECT id, user_id, available_from, available_to, constraints, created_at
		FROM queue_entries
		WHERE user_id = $1 AND status = 'waiting'`, userID).Scan(
		&entry.ID,
		&entry.UserID,
		&entry.AvailableFrom,
		&entry.AvailableTo,
		&constraintsJSON,
		&entry.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no waiting entry for user %s", ErrEntryNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: entry lookup failed: %v", ErrQueryExecutionFailed, err)
	}

	if len(constraintsJSON) > 0 {
		if err := json.Unmarshal(constraintsJSON, &entry.Constraints); err != nil {
			h.logger.Warn("unreadable constraints, treating as unconstrained", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}
	entry.Status = models.QueueStatusWaiting

	return &entry, nil
}

// listEligible returns waiting entries other than the requester's whose
// window covers now and whose constraints are mutually satisfiable, ordered
// oldest first.
func (h *Handler) listEligible(ctx context.Context, entry *models.QueueEntry, now int64) ([]models.QueueEntry, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, user_id, available_from, available_to, constraints, created_at
		FROM queue_entries
		WHERE status = 'waiting'
		  AND user_id != $1
		  AND available_from <= $2
		  AND available_to > $2
		ORDER BY created_at ASC`, entry.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: candidate query failed: %v", ErrQueryExecutionFailed, err)
	}
	defer rows.Close()

	var candidates []models.QueueEntry
	for rows.Next() {
		var (
			candidate       models.QueueEntry
			constraintsJSON []byte
		)
		if err := rows.Scan(
			&candidate.ID,
			&candidate.UserID,
			&candidate.AvailableFrom,
			&candidate.AvailableTo,
			&constraintsJSON,
			&candidate.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: candidate scan failed: %v", ErrQueryExecutionFailed, err)
		}

		if len(constraintsJSON) > 0 {
			if err := json.Unmarshal(constraintsJSON, &candidate.Constraints); err != nil {
				h.logger.Warn("unreadable candidate constraints, skipping", map[string]interface{}{
					"candidateId": candidate.UserID,
					"error":       err,
				})
				continue
			}
		}

		if !entry.Constraints.MutuallySatisfiable(candidate.Constraints) {
			continue
		}

		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: candidate iteration failed: %v", ErrQueryExecutionFailed, err)
	}

	return candidates, nil
}

// activeWeights resolves the production weight vector: Redis cache, then the
// weight_vectors table, then the bootstrap default. A resolution failure is
// never fatal, matching continues on defaults.
func (h *Handler) activeWeights(ctx context.Context) models.WeightVector {
	if val, err := h.redis.Get(ctx, weightsCacheKey).Result(); err == nil {
		var weights models.WeightVector
		if err := json.Unmarshal([]byte(val), &weights); err == nil && len(weights) > 0 {
			return weights
		}
	}

	var weightsJSON []byte
	err := h.db.QueryRowContext(ctx, `
		SELECT weights FROM weight_vectors
		WHERE status = 'active'
		ORDER BY version DESC
		LIMIT 1`).Scan(&weightsJSON)
	if err != nil {
		if err != sql.ErrNoRows {
			h.logger.Warn("active weights lookup failed, using defaults", map[string]interface{}{
				"error": err,
			})
		}
		return models.DefaultWeights()
	}

	var weights models.WeightVector
	if err := json.Unmarshal(weightsJSON, &weights); err != nil || len(weights) == 0 {
		h.logger.Warn("unreadable active weights, using defaults", map[string]interface{}{
			"error": err,
		})
		return models.DefaultWeights()
	}

	if data, err := json.Marshal(weights); err == nil {
		h.redis.Set(ctx, weightsCacheKey, data, h.config.WeightsCacheTTL)
	}

	return weights
}

// loadProfiles resolves scoring profiles through the per-user Redis cache,
// fetching misses from the directory in one batch.
func (h *Handler) loadProfiles(ctx context.Context, entry *models.QueueEntry, candidates []models.QueueEntry) (map[string]*models.ScoringProfile, error) {
	ids := make([]string, 0, len(candidates)+1)
	ids = append(ids, entry.UserID)
	for i := range candidates {
		ids = append(ids, candidates[i].UserID)
	}

	profiles := make(map[string]*models.ScoringProfile, len(ids))
	var missing []string

	for _, id := range ids {
		if val, err := h.redis.Get(ctx, profileCachePrefix+id).Result(); err == nil {
			var profile models.ScoringProfile
			if err := json.Unmarshal([]byte(val), &profile); err == nil {
				profiles[id] = &profile
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return profiles, nil
	}

	fetched, err := h.directory.GetProfiles(ctx, missing)
	if err != nil {
		// Cached profiles can still carry the pass; the requester check in
		// execute decides whether that is enough.
		h.logger.Warn("directory batch fetch failed", map[string]interface{}{
			"error":   err,
			"missing": len(missing),
		})
		return profiles, nil
	}

	for id, profile := range fetched {
		profiles[id] = profile
		if data, err := json.Marshal(profile); err == nil {
			h.redis.Set(ctx, profileCachePrefix+id, data, h.config.ProfileCacheTTL)
		}
	}

	return profiles, nil
}

// commitPair moves both entries waiting -> matched in one transaction. The
// status guard on each update means a concurrent selector or sweep that got
// there first leaves rows untouched, and the conflict surfaces as a
// retryable error instead of a half-match.
func (h *Handler) commitPair(ctx context.Context, userID, candidateID, matchID, matchedAt string) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin failed: %v", ErrQueryExecutionFailed, err)
	}

	pairs := []struct{ user, partner string }{
		{userID, candidateID},
		{candidateID, userID},
	}
	for _, p := range pairs {
		user, partner := p.user, p.partner
		result, err := tx.ExecContext(ctx, `
			UPDATE queue_entries
			SET status = 'matched', matched_with = $2, match_id = $3, updated_at = $4
			WHERE user_id = $1 AND status = 'waiting'`,
			user, partner, matchID, matchedAt)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: commit update failed: %v", ErrQueryExecutionFailed, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: rows affected unavailable: %v", ErrQueryExecutionFailed, err)
		}
		if affected != 1 {
			tx.Rollback()
			return fmt.Errorf("%w: entry for %s no longer waiting", ErrCommitConflict, user)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit failed: %v", ErrQueryExecutionFailed, err)
	}

	return nil
}

// notifyMatchCreated publishes the match-created event for the external
// meeting scheduler. Fire and forget: a publish failure never rolls back
// the committed pair, the collaborator retries off its dead-letter queue.
func (h *Handler) notifyMatchCreated(ctx context.Context, result *models.MatchResult) {
	if h.notifier == nil || h.config.MatchTopicARN == "" {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		h.logger.Error("failed to marshal match-created event", map[string]interface{}{
			"error":   err,
			"matchId": result.MatchID,
		})
		return
	}

	_, err = h.notifier.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(h.config.MatchTopicARN),
		Message:  awssdk.String(string(payload)),
		Subject:  awssdk.String("match.created"),
	})
	if err != nil {
		h.logger.Error("match-created publish failed", map[string]interface{}{
			"error":   err,
			"matchId": result.MatchID,
		})
	}
}

func (h *Handler) writeAuditLog(ctx context.Context, result *models.MatchResult, matchedAt string) {
	detailsJSON, err := json.Marshal(map[string]interface{}{
		"userId":      result.UserID,
		"candidateId": result.CandidateID,
		"score":       result.Score,
		"variant":     result.Variant,
	})
	if err != nil {
		detailsJSON = []byte("{}")
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		"match_committed",
		"match",
		result.MatchID,
		detailsJSON,
		matchedAt,
	)
	if err != nil {
		h.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":   err,
			"matchId": result.MatchID,
		})
	}
}

func variantLabel(variant string) string {
	if variant == "" {
		return "none"
	}
	return variant
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
