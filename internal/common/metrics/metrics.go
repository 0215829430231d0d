// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matching_queue_depth",
			Help: "Number of waiting queue entries, refreshed on queue operations",
		},
		[]string{"status"},
	)

	MatchesCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_matches_committed_total",
			Help: "Total number of pairs committed",
		},
		[]string{"variant"},
	)

	MatchScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matching_match_score",
			Help:    "Compatibility score of committed matches",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"variant"},
	)

	OutcomesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_outcomes_recorded_total",
			Help: "Total number of match outcomes recorded",
		},
		[]string{"outcome"},
	)

	WeightOptimizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_weight_optimizations_total",
			Help: "Total number of weight optimization runs",
		},
		[]string{"result"},
	)
)
