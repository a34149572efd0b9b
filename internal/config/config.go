package config

import "time"

// Config represents the complete application configuration. Values come from
// viper: defaults set by the root command, an optional YAML config file, and
// MODLENS_* environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains snapshot database configuration for libsql/Turso
type StoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// EngineConfig contains the tunable policy parameters of the sync engine:
// the shared token budget, staleness window, sweep cadence, and retry policy.
// These are deployment policy, not constants.
type EngineConfig struct {
	BucketCapacity      int           `mapstructure:"bucket_capacity"`
	RefillRatePerSecond float64       `mapstructure:"refill_rate_per_second"`
	TTL                 time.Duration `mapstructure:"ttl"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	BaseRetryDelay      time.Duration `mapstructure:"base_retry_delay"`
	MaxRetryDelay       time.Duration `mapstructure:"max_retry_delay"`
	MaxRetries          int           `mapstructure:"max_retries"`
	AutoStart           bool          `mapstructure:"auto_start"`
}

// UpstreamConfig contains the workshop API client configuration.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig contains logging configuration.
// Valid levels: trace, debug, info, warn, error.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also available at the main HTTP port
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}
