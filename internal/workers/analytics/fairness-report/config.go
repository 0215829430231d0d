// internal/workers/analytics/fairness-report/config.go
package fairnessreport

import "time"

type Config struct {
	Timeout time.Duration
	// Window bounds how far back sampled queue entries reach.
	Window time.Duration
	// DisparityThreshold is the relative gap between best and worst
	// segment above which a metric is flagged.
	DisparityThreshold float64
	MinSegmentSize     int
	// Experiment, when set, adds a variant significance evaluation to the
	// report.
	Experiment    string
	SignificanceZ float64
	AdminRole     string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:            30 * time.Second,
		Window:             30 * 24 * time.Hour,
		DisparityThreshold: 0.2,
		MinSegmentSize:     10,
		SignificanceZ:      1.96,
		AdminRole:          "matching-admin",
	}
}
