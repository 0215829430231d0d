// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Matching     MatchingConfig          `mapstructure:"matching"`
	Fairness     FairnessConfig          `mapstructure:"fairness"`
	Experiments  ExperimentsConfig       `mapstructure:"experiments"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Auth         AuthConfig              `mapstructure:"auth"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	Directory    DirectoryConfig         `mapstructure:"directory"`
	Logging      LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
	Index      string   `mapstructure:"index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Matching Domain Config ---

// MatchingConfig tunes the selector and the weight optimizer.
type MatchingConfig struct {
	MinScore          float64 `mapstructure:"min_score"`          // selector commit threshold
	WeightFloor       float64 `mapstructure:"weight_floor"`       // optimizer clamp, > 0
	DecisionThreshold float64 `mapstructure:"decision_threshold"` // improvement-estimate classifier cut
	MinSamples        int     `mapstructure:"min_samples"`        // optimizer batch minimum
	BatchLimit        int     `mapstructure:"batch_limit"`        // optimizer batch cap
	ProfileCacheTTL   int     `mapstructure:"profile_cache_ttl"`  // seconds
	WeightsCacheTTL   int     `mapstructure:"weights_cache_ttl"`  // seconds
	WaitEstimateWindow int    `mapstructure:"wait_estimate_window"` // hours of history for avg wait
}

// FairnessConfig tunes the read-side disparity monitor.
type FairnessConfig struct {
	DisparityThreshold float64 `mapstructure:"disparity_threshold"` // relative gap, e.g. 0.2
	MinSegmentSize     int     `mapstructure:"min_segment_size"`
}

// ExperimentsConfig tunes A/B variant allocation and evaluation.
type ExperimentsConfig struct {
	ActiveExperiment string  `mapstructure:"active_experiment"`
	Variants         int     `mapstructure:"variants"`
	SignificanceZ    float64 `mapstructure:"significance_z"` // e.g. 1.96
}

// DirectoryConfig points at the user-directory collaborator.
type DirectoryConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// AuthConfig holds settings for privileged-call authorization.
type AuthConfig struct {
	Keycloak struct {
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
	} `mapstructure:"keycloak"`

	AdminRole string `mapstructure:"admin_role"`
}

// IntegrationConfig holds settings for AWS-backed notification channels.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled       bool   `mapstructure:"enabled"`
			MatchTopicARN string `mapstructure:"match_topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
