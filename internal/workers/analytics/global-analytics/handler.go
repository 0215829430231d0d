// internal/workers/analytics/global-analytics/handler.go
package globalanalytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stderrors "matching-workers/internal/common/errors"
	"matching-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "global-analytics"
)

var (
	ErrInvalidTimeRange  = errors.New("VALIDATION_FAILED")
	ErrSearchQueryFailed = errors.New("SEARCH_QUERY_FAILED")
)

// Interfaces for mocking
type roleChecker interface {
	RequireRole(ctx context.Context, token, role string) error
}

type searcher interface {
	Search(ctx context.Context, index, body string) ([]byte, error)
}

type Handler struct {
	config *Config
	es     searcher
	auth   roleChecker
	logger logger.Logger
}

func NewHandler(config *Config, es searcher, auth roleChecker, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		es:     es,
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
		} else if errors.Is(err, ErrInvalidTimeRange) {
			errorCode = "VALIDATION_FAILED"
		} else if errors.Is(err, ErrSearchQueryFailed) {
			errorCode = "SEARCH_QUERY_FAILED"
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

	from, to, err := h.resolveRange(input)
	if err != nil {
		return nil, err
	}

	body, err := buildAggregationQuery(from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build query: %v", ErrSearchQueryFailed, err)
	}

	raw, err := h.es.Search(ctx, h.config.AnalyticsIndex, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchQueryFailed, err)
	}

	output, err := parseAggregationResponse(raw)
	if err != nil {
		return nil, err
	}
	output.From = from.Format(time.RFC3339)
	output.To = to.Format(time.RFC3339)

	h.logger.Info("global analytics computed", map[string]interface{}{
		"from":          output.From,
		"to":            output.To,
		"totalOutcomes": output.TotalOutcomes,
	})

	return output, nil
}

func (h *Handler) resolveRange(input *Input) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	if input.To != "" {
		parsed, err := time.Parse(time.RFC3339, input.To)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: unparseable to: %v", ErrInvalidTimeRange, err)
		}
		to = parsed
	}

	from := to.Add(-h.config.DefaultRange)
	if input.From != "" {
		parsed, err := time.Parse(time.RFC3339, input.From)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: unparseable from: %v", ErrInvalidTimeRange, err)
		}
		from = parsed
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from must precede to", ErrInvalidTimeRange)
	}

	return from, to, nil
}

func buildAggregationQuery(from, to time.Time) (string, error) {
	query := map[string]interface{}{
		"size": 0,
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"recordedAt": map[string]interface{}{
					"gte": from.Format(time.RFC3339),
					"lt":  to.Format(time.RFC3339),
				},
			},
		},
		"aggs": map[string]interface{}{
			"outcomes": map[string]interface{}{
				"terms": map[string]interface{}{"field": "outcome"},
			},
			"daily": map[string]interface{}{
				"date_histogram": map[string]interface{}{
					"field":             "recordedAt",
					"calendar_interval": "day",
				},
			},
			"avg_rating": map[string]interface{}{
				"avg": map[string]interface{}{"field": "feedbackRating"},
			},
		},
	}

	data, err := json.Marshal(query)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type aggregationResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
	} `json:"hits"`
	Aggregations struct {
		Outcomes struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int64  `json:"doc_count"`
			} `json:"buckets"`
		} `json:"outcomes"`
		Daily struct {
			Buckets []struct {
				KeyAsString string `json:"key_as_string"`
				DocCount    int64  `json:"doc_count"`
			} `json:"buckets"`
		} `json:"daily"`
		AvgRating struct {
			Value *float64 `json:"value"`
		} `json:"avg_rating"`
	} `json:"aggregations"`
}

func parseAggregationResponse(raw []byte) (*Output, error) {
	var response aggregationResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("%w: unreadable search response: %v", ErrSearchQueryFailed, err)
	}

	output := &Output{
		TotalOutcomes: response.Hits.Total.Value,
		Outcomes:      make(map[string]int64),
	}
	for _, bucket := range response.Aggregations.Outcomes.Buckets {
		output.Outcomes[bucket.Key] = bucket.DocCount
	}
	for _, bucket := range response.Aggregations.Daily.Buckets {
		output.DailyVolume = append(output.DailyVolume, DailyVolume{
			Date:  bucket.KeyAsString,
			Count: bucket.DocCount,
		})
	}
	if response.Aggregations.AvgRating.Value != nil {
		output.AvgRating = *response.Aggregations.AvgRating.Value
	}

	return output, nil
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
