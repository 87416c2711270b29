package config

import (
	"io"

	"radium-hq/toolgate/pkg/alerts"
	"radium-hq/toolgate/pkg/analytics/recorder"
	"radium-hq/toolgate/pkg/analytics/retention"
	"radium-hq/toolgate/pkg/analytics/storage"
	"radium-hq/toolgate/pkg/policy/engine"
	"radium-hq/toolgate/pkg/telemetry/logging"
	"radium-hq/toolgate/pkg/telemetry/metrics"
	"radium-hq/toolgate/pkg/telemetry/tracing"
)

// The methods below translate validated configuration into the config types
// of the packages that consume it.

// EngineConfig returns the policy engine configuration.
func (c *Config) EngineConfig() *engine.EngineConfig {
	return &engine.EngineConfig{
		BeforeToolFailure: engine.FailSafeMode(c.Engine.BeforeToolFailure),
		HookTimeout:       c.Engine.HookTimeout,
		SinkTimeout:       c.Engine.SinkTimeout,
		PreviewTimeout:    c.Engine.PreviewTimeout,
	}
}

// AlertsConfig returns the alert manager configuration.
func (c *Config) AlertsConfig() alerts.Config {
	cfg := alerts.Config{
		Enabled:            c.Alerts.Enabled,
		RateLimitPerMinute: c.Alerts.RateLimitPerMinute,
		Timeout:            c.Alerts.Timeout,
	}
	for _, wh := range c.Alerts.Webhooks {
		cfg.Webhooks = append(cfg.Webhooks, alerts.Webhook{
			URL:         wh.URL,
			Token:       wh.Token,
			MinSeverity: alerts.Severity(wh.MinSeverity),
		})
	}
	return cfg
}

// RecorderConfig returns the analytics recorder configuration.
func (c *Config) RecorderConfig() *recorder.Config {
	return &recorder.Config{
		Enabled:       c.Analytics.Enabled,
		AsyncBuffer:   c.Analytics.AsyncBuffer,
		WriteTimeout:  c.Analytics.WriteTimeout,
		RedactSecrets: c.Analytics.RedactSecrets,
		MaxArgLength:  c.Analytics.MaxArgLength,
	}
}

// SQLiteConfig returns the SQLite storage configuration.
func (c *Config) SQLiteConfig() *storage.SQLiteConfig {
	s := c.Analytics.SQLite
	return &storage.SQLiteConfig{
		Path:         s.Path,
		Driver:       s.Driver,
		MaxOpenConns: s.MaxOpenConns,
		MaxIdleConns: s.MaxIdleConns,
		WALMode:      s.WALMode,
		BusyTimeout:  s.BusyTimeout,
	}
}

// RetentionConfig returns the retention pruner configuration.
func (c *Config) RetentionConfig() *retention.Config {
	r := c.Analytics.Retention
	return &retention.Config{
		RetentionDays:       r.Days,
		PruneSchedule:       r.Schedule,
		ArchiveBeforeDelete: r.Archive,
		ArchivePath:         r.ArchivePath,
		MaxEvents:           r.MaxEvents,
	}
}

// LoggingConfig returns the logger configuration writing to w.
func (c *Config) LoggingConfig(w io.Writer) logging.Config {
	l := c.Telemetry.Logging
	return logging.Config{
		Level:     l.Level,
		Format:    l.Format,
		AddSource: l.AddSource,
		Writer:    w,
	}
}

// MetricsConfig returns the Prometheus collector configuration.
func (c *Config) MetricsConfig() *metrics.Config {
	return &metrics.Config{
		Enabled:   c.Telemetry.Metrics.Enabled,
		Namespace: c.Telemetry.Metrics.Namespace,
	}
}

// TracingConfig returns the tracer configuration.
func (c *Config) TracingConfig(version string) *tracing.Config {
	t := c.Telemetry.Tracing
	return &tracing.Config{
		Enabled:        t.Enabled,
		ServiceName:    t.ServiceName,
		ServiceVersion: version,
		Endpoint:       t.Endpoint,
		Insecure:       t.Insecure,
		SampleRatio:    t.SampleRatio,
		Timeout:        t.Timeout,
	}
}
