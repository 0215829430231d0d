// internal/models/queue.go
package models

import "time"

type QueueStatus string

const (
	QueueStatusWaiting   QueueStatus = "waiting"
	QueueStatusMatched   QueueStatus = "matched"
	QueueStatusExpired   QueueStatus = "expired"
	QueueStatusCancelled QueueStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusMatched || s == QueueStatusExpired || s == QueueStatusCancelled
}

// MatchConstraints narrows the candidate set for one queue entry.
// Empty slices mean "no constraint".
type MatchConstraints struct {
	Interests []string `json:"interests,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	OrgScope  string   `json:"orgScope,omitempty"` // "same", "different" or "" (any)
}

// QueueEntry is one user's open matching request. At most one entry per
// user may be in waiting state, enforced by a partial unique index on
// queue_entries(user_id) WHERE status = 'waiting'.
type QueueEntry struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	AvailableFrom int64            `json:"availableFrom"` // epoch ms
	AvailableTo   int64            `json:"availableTo"`   // epoch ms
	Constraints   MatchConstraints `json:"constraints"`
	Status        QueueStatus      `json:"status"`
	MatchedWith   string           `json:"matchedWith,omitempty"`
	MatchID       string           `json:"matchId,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// WindowContains reports whether the availability window covers the instant.
func (e *QueueEntry) WindowContains(now int64) bool {
	return e.AvailableFrom <= now && now < e.AvailableTo
}

// MutuallySatisfiable reports whether two constraint sets allow a pairing:
// for interests and roles the intersection must be non-empty unless either
// side left the dimension unconstrained, and org scoping rules must not
// contradict each other.
func (c MatchConstraints) MutuallySatisfiable(other MatchConstraints) bool {
	if !listsOverlap(c.Interests, other.Interests) {
		return false
	}
	if !listsOverlap(c.Roles, other.Roles) {
		return false
	}
	if c.OrgScope != "" && other.OrgScope != "" && c.OrgScope != other.OrgScope {
		return false
	}
	return true
}

func listsOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
