// internal/workers/data-access/query-postgresql/models.go
package querypostgresql

import "matching-workers/internal/models"

type Input struct {
	QueryType string                 `json:"queryType"`
	UserID    string                 `json:"userId,omitempty"`
	MatchID   string                 `json:"matchId,omitempty"`
	Limit     int                    `json:"limit,omitempty"`
	Filters   map[string]interface{} `json:"filters,omitempty"`
}

type Output struct {
	Data               interface{} `json:"data"`
	RowCount           int         `json:"rowCount"`
	QueryExecutionTime int64       `json:"queryExecutionTime"` // milliseconds
}

type QueryType = models.QueryType

// Export constants for external use
var (
	QueryTypeQueueEntryByUser = models.QueryTypeQueueEntryByUser
	QueryTypeQueueDepth       = models.QueryTypeQueueDepth
	QueryTypeAnalyticsByMatch = models.QueryTypeAnalyticsByMatch
	QueryTypeActiveWeights    = models.QueryTypeActiveWeights
	QueryTypeRecentOutcomes   = models.QueryTypeRecentOutcomes
)
