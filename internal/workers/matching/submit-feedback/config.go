// internal/workers/matching/submit-feedback/config.go
package submitfeedback

import "time"

type Config struct {
	Timeout time.Duration
	// AnalyticsIndex is the Elasticsearch index holding outcome documents;
	// feedback is mirrored there when set.
	AnalyticsIndex string
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
