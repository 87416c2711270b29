package config

import "time"

// Config is the root configuration structure for toolgate.
type Config struct {
	// Policy locates the TOML policy file and controls hot reload.
	Policy PolicyConfig `yaml:"policy"`

	// Engine tunes hook and sink timeouts and the before-tool failure mode.
	Engine EngineConfig `yaml:"engine"`

	// Alerts configures webhook delivery of non-allow decisions.
	Alerts AlertsConfig `yaml:"alerts"`

	// Analytics configures the decision audit trail.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Server configures the HTTP evaluation server.
	Server ServerConfig `yaml:"server"`
}

// PolicyConfig contains configuration for the policy file.
type PolicyConfig struct {
	// File is the path of the TOML policy file.
	// Default: "policy.toml"
	File string `yaml:"file"`

	// Watch reloads the policy when the file changes.
	// Default: true
	Watch bool `yaml:"watch"`

	// Debounce coalesces bursts of file events into one reload.
	// Default: 200ms
	Debounce time.Duration `yaml:"debounce"`

	// RejectConflicts refuses a reload whose rules conflict.
	RejectConflicts bool `yaml:"reject_conflicts"`
}

// EngineConfig mirrors engine.EngineConfig.
type EngineConfig struct {
	// HookTimeout bounds each hook pipeline call. Default: 5s
	HookTimeout time.Duration `yaml:"hook_timeout"`

	// SinkTimeout bounds each alert and analytics dispatch. Default: 2s
	SinkTimeout time.Duration `yaml:"sink_timeout"`

	// PreviewTimeout bounds dry-run preview generation. Default: 2s
	PreviewTimeout time.Duration `yaml:"preview_timeout"`

	// BeforeToolFailure is "fail-open" or "fail-closed".
	// Default: "fail-open"
	BeforeToolFailure string `yaml:"before_tool_failure"`
}

// AlertsConfig contains webhook alert configuration.
type AlertsConfig struct {
	Enabled bool `yaml:"enabled"`

	// RateLimitPerMinute caps deliveries across all webhooks. Default: 10
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	// Timeout bounds each webhook request. Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one alert destination.
type WebhookConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`

	// MinSeverity is "info", "warning" or "critical". Default: "warning"
	MinSeverity string `yaml:"min_severity"`
}

// AnalyticsConfig contains decision recording configuration.
type AnalyticsConfig struct {
	// Enabled records every decision. Default: true
	Enabled bool `yaml:"enabled"`

	// Backend is "memory" or "sqlite". Default: "sqlite"
	Backend string `yaml:"backend"`

	// AsyncBuffer is the recorder queue size. Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds each storage write. Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RedactSecrets masks secret-looking arguments. Default: true
	RedactSecrets bool `yaml:"redact_secrets"`

	// MaxArgLength truncates stored arguments. Default: 500
	MaxArgLength int `yaml:"max_arg_length"`

	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains SQLite backend configuration.
type SQLiteConfig struct {
	// Path is the database file. Default: "data/policy-analytics.db"
	Path string `yaml:"path"`

	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo). Default: "sqlite"
	Driver string `yaml:"driver"`

	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	WALMode      bool          `yaml:"wal_mode"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig contains analytics retention configuration.
type RetentionConfig struct {
	// Days is how long events are kept. 0 keeps them forever. Default: 90
	Days int `yaml:"days"`

	// Schedule is a standard cron expression. Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// Archive writes pruned events to ArchivePath before deleting them.
	Archive     bool   `yaml:"archive"`
	ArchivePath string `yaml:"archive_path"`

	// MaxEvents caps stored events. 0 means unlimited.
	MaxEvents int64 `yaml:"max_events"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error". Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text". Default: "json"
	Format string `yaml:"format"`

	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus configuration.
type MetricsConfig struct {
	// Enabled exposes /metrics. Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric. Default: "toolgate"
	Namespace string `yaml:"namespace"`

	// ListenAddress serves /metrics on a separate listener. Empty mounts
	// /metrics on the main server.
	ListenAddress string `yaml:"listen_address"`
}

// TracingConfig contains OpenTelemetry configuration.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// ServiceName is reported as service.name. Default: "toolgate"
	ServiceName string `yaml:"service_name"`

	// Endpoint is the OTLP gRPC collector. Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of traces sampled. Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Timeout bounds each export. Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// ListenAddress is the evaluation server address. Default: ":8787"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout and WriteTimeout bound each request. Default: 30s
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies. Default: 1MiB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}
