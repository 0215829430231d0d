// internal/models/query_types.go
package models

type QueryType string

const (
	QueryTypeQueueEntryByUser QueryType = "queue_entry_by_user"
	QueryTypeAnalyticsByMatch QueryType = "analytics_by_match"
	QueryTypeActiveWeights    QueryType = "active_weights"
	QueryTypeRecentOutcomes   QueryType = "recent_outcomes"
	QueryTypeQueueDepth       QueryType = "queue_depth"
)
