// internal/workers/matching/match-history/config.go
package matchhistory

import "time"

type Config struct {
	Timeout time.Duration
	// DefaultLimit caps the page size when the caller does not set one.
	DefaultLimit int
	MaxLimit     int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      10 * time.Second,
		DefaultLimit: 20,
		MaxLimit:     100,
	}
}
