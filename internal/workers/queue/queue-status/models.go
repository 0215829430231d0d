// internal/workers/queue/queue-status/models.go
package queuestatus

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	EntryID         string `json:"entryId"`
	Status          string `json:"status"`
	AvailableFrom   int64  `json:"availableFrom"`
	AvailableTo     int64  `json:"availableTo"`
	MatchedWith     string `json:"matchedWith,omitempty"`
	MatchID         string `json:"matchId,omitempty"`
	QueueDepth      int64  `json:"queueDepth"`
	EstimatedWaitMs int64  `json:"estimatedWaitMs"`
}
