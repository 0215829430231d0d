// internal/workers/matching/find-match/config.go
package findmatch

import "time"

type Config struct {
	Timeout time.Duration
	// MinScore is the commit threshold: below it the entry stays waiting.
	MinScore float64
	// Experiment is the active experiment name, empty disables stamping.
	Experiment string
	Variants   int
	// MatchTopicARN receives the match-created event.
	MatchTopicARN   string
	ProfileCacheTTL time.Duration
	WeightsCacheTTL time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:         30 * time.Second,
		MinScore:        0.3,
		Variants:        2,
		ProfileCacheTTL: 10 * time.Minute,
		WeightsCacheTTL: time.Minute,
	}
}
