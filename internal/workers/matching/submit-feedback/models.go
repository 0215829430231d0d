// internal/workers/matching/submit-feedback/models.go
package submitfeedback

type Input struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
	Rating  int    `json:"rating"` // 1..5
	Comment string `json:"comment,omitempty"`
}

type Output struct {
	Attached   bool   `json:"attached"`
	AttachedAt string `json:"attachedAt"` // ISO 8601
}
