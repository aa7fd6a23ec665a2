// Package config defines the daemon's configuration. Configuration is loaded
// once at startup and immutable thereafter, following 12-Factor principles:
// values come from the OS environment, with a local .env file as a
// development convenience. A missing required value or invalid format fails
// the process immediately on startup.
package config

import (
	"time"

	"fieldwatch/internal/rules"
	"fieldwatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for credentials in configuration.
type SecretString = types.SecretString

// Config is the top-level configuration for the alert engine daemon. It is
// populated once during startup and never modified. Components receive only
// the subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Ops        OpsConfig
	Database   DatabaseConfig
	Weather    WeatherConfig
	Push       PushConfig
	Engine     EngineConfig
	Retention  RetentionConfig
	Metrics    MetricsConfig
	Thresholds rules.Thresholds

	// Build metadata injected via ldflags, not environment.
	Build BuildInfo
}

// OpsConfig holds the operational HTTP listener settings.
type OpsConfig struct {
	Port string `envconfig:"OPS_PORT" default:"9090"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// WeatherConfig holds the upstream weather provider settings.
type WeatherConfig struct {
	BaseURL        string        `envconfig:"WEATHER_BASE_URL" validate:"required,url"`
	Timeout        time.Duration `envconfig:"WEATHER_TIMEOUT" default:"15s"`
	MaxRetries     int           `envconfig:"WEATHER_MAX_RETRIES" default:"2"`
	RetryMinWait   time.Duration `envconfig:"WEATHER_RETRY_MIN_WAIT" default:"500ms"`
	RetryMaxWait   time.Duration `envconfig:"WEATHER_RETRY_MAX_WAIT" default:"5s"`
	ForecastPoints int           `envconfig:"WEATHER_FORECAST_POINTS" default:"8"`
}

// PushConfig holds the push notification provider settings.
type PushConfig struct {
	BaseURL string        `envconfig:"PUSH_BASE_URL" validate:"required,url"`
	APIKey  SecretString  `envconfig:"PUSH_API_KEY" validate:"required"`
	Timeout time.Duration `envconfig:"PUSH_TIMEOUT" default:"10s"`
}

// EngineConfig holds the evaluation cycle scheduling parameters.
type EngineConfig struct {
	CycleInterval     time.Duration `envconfig:"CYCLE_INTERVAL" default:"15m"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
	Concurrency       int           `envconfig:"CYCLE_CONCURRENCY" default:"4"`
	PacingDelay       time.Duration `envconfig:"CYCLE_PACING_DELAY" default:"100ms"`
	SuppressionWindow time.Duration `envconfig:"ALERT_SUPPRESSION_WINDOW" default:"6h"`
}

// RetentionConfig holds the retention sweep parameters.
type RetentionConfig struct {
	AlertTTL          time.Duration `envconfig:"ALERT_TTL" default:"168h"`
	SnapshotRetention time.Duration `envconfig:"SNAPSHOT_RETENTION" default:"720h"`
	ArchiveDir        string        `envconfig:"SNAPSHOT_ARCHIVE_DIR"`
}

// MetricsConfig holds CloudWatch emission settings.
type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Region  string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// BuildInfo holds build-time metadata injected via ldflags. These values are
// NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}
