// internal/workers/queue/queue-status/config.go
package queuestatus

import "time"

type Config struct {
	Timeout time.Duration
	// CacheTTL bounds staleness of the shared wait estimate.
	CacheTTL time.Duration
	// WaitWindow is how far back matched entries count toward the estimate.
	WaitWindow time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    10 * time.Second,
		CacheTTL:   time.Minute,
		WaitWindow: 24 * time.Hour,
	}
}
