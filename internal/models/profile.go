// internal/models/profile.go
package models

// Embedding is an owned, decoded profile embedding. The directory transports
// embeddings as a base64 binary buffer; the directory client decodes it once
// and nothing downstream ever sees raw bytes.
type Embedding struct {
	Vector []float32 `json:"vector"`
	Model  string    `json:"model"`
}

// Dimension returns the vector length, 0 for an absent embedding.
func (e *Embedding) Dimension() int {
	if e == nil {
		return 0
	}
	return len(e.Vector)
}

// ScoringProfile is the slice of a directory profile the matching engine
// needs. Missing fields stay zero-valued; the feature extractor maps them to
// neutral feature values.
type ScoringProfile struct {
	UserID          string     `json:"userId"`
	Interests       []string   `json:"interests"`
	Role            string     `json:"role"`
	Industry        string     `json:"industry"`
	Org             string     `json:"org"`
	Languages       []string   `json:"languages"`
	Timezone        string     `json:"timezone"`        // IANA name, e.g. "Europe/Berlin"
	TimezoneOffset  int        `json:"timezoneOffset"`  // minutes east of UTC
	ExperienceLevel int        `json:"experienceLevel"` // 1..5
	Segment         string     `json:"segment,omitempty"`
	Email           string     `json:"email,omitempty"`
	Embedding       *Embedding `json:"embedding,omitempty"`
}
