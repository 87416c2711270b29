package config

import "time"

// Default values for configuration fields.
const (
	// Policy defaults
	DefaultPolicyFile     = "policy.toml"
	DefaultPolicyWatch    = true
	DefaultPolicyDebounce = 200 * time.Millisecond

	// Engine defaults
	DefaultHookTimeout       = 5 * time.Second
	DefaultSinkTimeout       = 2 * time.Second
	DefaultPreviewTimeout    = 2 * time.Second
	DefaultBeforeToolFailure = "fail-open"

	// Alerts defaults
	DefaultAlertsRateLimitPerMinute = 10
	DefaultAlertsTimeout            = 5 * time.Second
	DefaultWebhookMinSeverity       = "warning"

	// Analytics defaults
	DefaultAnalyticsEnabled       = true
	DefaultAnalyticsBackend       = "sqlite"
	DefaultAnalyticsAsyncBuffer   = 1000
	DefaultAnalyticsWriteTimeout  = 5 * time.Second
	DefaultAnalyticsRedactSecrets = true
	DefaultAnalyticsMaxArgLength  = 500
	DefaultSQLitePath             = "data/policy-analytics.db"
	DefaultSQLiteDriver           = "sqlite"
	DefaultSQLiteMaxOpenConns     = 10
	DefaultSQLiteMaxIdleConns     = 5
	DefaultSQLiteWALMode          = true
	DefaultSQLiteBusyTimeout      = 5 * time.Second
	DefaultRetentionDays          = 90
	DefaultRetentionSchedule      = "0 3 * * *"
	DefaultRetentionArchivePath   = "data/archives/"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsNamespace   = "toolgate"
	DefaultTracingServiceName = "toolgate"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingInsecure    = true
	DefaultTracingSampleRatio = 1.0
	DefaultTracingTimeout     = 10 * time.Second

	// Server defaults
	DefaultListenAddress   = ":8787"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
)

// Default returns a configuration with every default applied, including the
// defaults whose zero value is meaningful (booleans, retention days and
// schedule), which ApplyDefaults leaves alone. LoadConfig decodes YAML on top
// of it.
func Default() *Config {
	cfg := &Config{}
	cfg.Policy.Watch = DefaultPolicyWatch
	cfg.Analytics.Enabled = DefaultAnalyticsEnabled
	cfg.Analytics.RedactSecrets = DefaultAnalyticsRedactSecrets
	cfg.Analytics.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Analytics.Retention.Days = DefaultRetentionDays
	cfg.Analytics.Retention.Schedule = DefaultRetentionSchedule
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Insecure = DefaultTracingInsecure
	cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets defaults for any fields that have zero values.
// It is idempotent.
func ApplyDefaults(cfg *Config) {
	// Policy defaults
	if cfg.Policy.File == "" {
		cfg.Policy.File = DefaultPolicyFile
	}
	if cfg.Policy.Debounce == 0 {
		cfg.Policy.Debounce = DefaultPolicyDebounce
	}

	// Engine defaults
	if cfg.Engine.HookTimeout == 0 {
		cfg.Engine.HookTimeout = DefaultHookTimeout
	}
	if cfg.Engine.SinkTimeout == 0 {
		cfg.Engine.SinkTimeout = DefaultSinkTimeout
	}
	if cfg.Engine.PreviewTimeout == 0 {
		cfg.Engine.PreviewTimeout = DefaultPreviewTimeout
	}
	if cfg.Engine.BeforeToolFailure == "" {
		cfg.Engine.BeforeToolFailure = DefaultBeforeToolFailure
	}

	// Alerts defaults
	if cfg.Alerts.RateLimitPerMinute == 0 {
		cfg.Alerts.RateLimitPerMinute = DefaultAlertsRateLimitPerMinute
	}
	if cfg.Alerts.Timeout == 0 {
		cfg.Alerts.Timeout = DefaultAlertsTimeout
	}
	for i := range cfg.Alerts.Webhooks {
		if cfg.Alerts.Webhooks[i].MinSeverity == "" {
			cfg.Alerts.Webhooks[i].MinSeverity = DefaultWebhookMinSeverity
		}
	}

	// Analytics defaults
	if cfg.Analytics.Backend == "" {
		cfg.Analytics.Backend = DefaultAnalyticsBackend
	}
	if cfg.Analytics.AsyncBuffer == 0 {
		cfg.Analytics.AsyncBuffer = DefaultAnalyticsAsyncBuffer
	}
	if cfg.Analytics.WriteTimeout == 0 {
		cfg.Analytics.WriteTimeout = DefaultAnalyticsWriteTimeout
	}
	if cfg.Analytics.MaxArgLength == 0 {
		cfg.Analytics.MaxArgLength = DefaultAnalyticsMaxArgLength
	}
	applySQLiteDefaults(&cfg.Analytics.SQLite)
	if cfg.Analytics.Retention.ArchivePath == "" {
		cfg.Analytics.Retention.ArchivePath = DefaultRetentionArchivePath
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

func applySQLiteDefaults(cfg *SQLiteConfig) {
	if cfg.Path == "" {
		cfg.Path = DefaultSQLitePath
	}
	if cfg.Driver == "" {
		cfg.Driver = DefaultSQLiteDriver
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultSQLiteBusyTimeout
	}
}
