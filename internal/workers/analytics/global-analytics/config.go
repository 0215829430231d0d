// internal/workers/analytics/global-analytics/config.go
package globalanalytics

import "time"

type Config struct {
	Timeout        time.Duration
	AnalyticsIndex string
	AdminRole      string
	// DefaultRange applies when the caller gives no time range.
	DefaultRange time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		AnalyticsIndex: "matching-analytics",
		AdminRole:      "matching-admin",
		DefaultRange:   30 * 24 * time.Hour,
	}
}
