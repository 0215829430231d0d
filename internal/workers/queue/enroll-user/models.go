// internal/workers/queue/enroll-user/models.go
package enrolluser

import "matching-workers/internal/models"

type Input struct {
	UserID        string                  `json:"userId"`
	AvailableFrom int64                   `json:"availableFrom"` // epoch ms
	AvailableTo   int64                   `json:"availableTo"`   // epoch ms
	Constraints   models.MatchConstraints `json:"constraints"`
}

type Output struct {
	EntryID   string `json:"entryId"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"` // ISO 8601
}
