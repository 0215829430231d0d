// internal/workers/analytics/optimize-weights/config.go
package optimizeweights

import "time"

type Config struct {
	Timeout time.Duration
	// MinSamples is the default resolved-outcome floor; callers may raise
	// it per run but never lower it below this.
	MinSamples int
	// BatchLimit caps how many recent outcomes feed one run.
	BatchLimit        int
	WeightFloor       float64
	DecisionThreshold float64
	// AdminRole is the realm role required to run the optimizer.
	AdminRole string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:           30 * time.Second,
		MinSamples:        50,
		BatchLimit:        1000,
		WeightFloor:       0.05,
		DecisionThreshold: 0.6,
		AdminRole:         "matching-admin",
	}
}
