// internal/workers/matching/record-outcome/config.go
package recordoutcome

import "time"

type Config struct {
	Timeout time.Duration
	// AnalyticsIndex is the Elasticsearch index mirroring outcome rows for
	// dashboard queries. Empty disables indexing.
	AnalyticsIndex string
	// FeedbackFromEmail is the sender for the post-match feedback request.
	// Empty disables the email.
	FeedbackFromEmail string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        10 * time.Second,
		AnalyticsIndex: "matching-analytics",
	}
}
