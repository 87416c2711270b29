package config

import (
	"fmt"
	"net/url"
	"strings"

	"radium-hq/toolgate/pkg/alerts"
	"radium-hq/toolgate/pkg/analytics/retention"
	"radium-hq/toolgate/pkg/analytics/storage"
	"radium-hq/toolgate/pkg/policy/engine"
	"radium-hq/toolgate/pkg/telemetry/logging"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate validates the entire configuration. All field errors are
// collected and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateAlerts(&cfg.Alerts)...)
	errs = append(errs, validateAnalytics(&cfg.Analytics)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateServer(&cfg.Server)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError
	if cfg.File == "" {
		errs = append(errs, FieldError{Field: "policy.file", Message: "policy file is required"})
	}
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{Field: "policy.debounce", Message: "debounce must not be negative"})
	}
	return errs
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError
	if _, err := engine.ParseFailSafeMode(cfg.BeforeToolFailure); err != nil {
		errs = append(errs, FieldError{
			Field:   "engine.before_tool_failure",
			Message: fmt.Sprintf("must be %q or %q, got %q", engine.FailOpen, engine.FailClosed, cfg.BeforeToolFailure),
		})
	}
	if cfg.HookTimeout <= 0 {
		errs = append(errs, FieldError{Field: "engine.hook_timeout", Message: "hook timeout must be positive"})
	}
	if cfg.SinkTimeout <= 0 {
		errs = append(errs, FieldError{Field: "engine.sink_timeout", Message: "sink timeout must be positive"})
	}
	if cfg.PreviewTimeout <= 0 {
		errs = append(errs, FieldError{Field: "engine.preview_timeout", Message: "preview timeout must be positive"})
	}
	return errs
}

func validateAlerts(cfg *AlertsConfig) []FieldError {
	var errs []FieldError
	if cfg.RateLimitPerMinute < 0 {
		errs = append(errs, FieldError{Field: "alerts.rate_limit_per_minute", Message: "rate limit must not be negative"})
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: "alerts.timeout", Message: "timeout must not be negative"})
	}
	if cfg.Enabled && len(cfg.Webhooks) == 0 {
		errs = append(errs, FieldError{Field: "alerts.webhooks", Message: "at least one webhook is required when alerts are enabled"})
	}
	for i, wh := range cfg.Webhooks {
		prefix := fmt.Sprintf("alerts.webhooks[%d]", i)
		u, err := url.Parse(wh.URL)
		if wh.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{Field: prefix + ".url", Message: fmt.Sprintf("invalid webhook URL %q", wh.URL)})
		}
		if _, err := alerts.ParseSeverity(wh.MinSeverity); err != nil {
			errs = append(errs, FieldError{Field: prefix + ".min_severity", Message: err.Error()})
		}
	}
	return errs
}

func validateAnalytics(cfg *AnalyticsConfig) []FieldError {
	var errs []FieldError
	switch cfg.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "analytics.backend",
			Message: fmt.Sprintf("must be \"memory\" or \"sqlite\", got %q", cfg.Backend),
		})
	}
	if cfg.AsyncBuffer < 0 {
		errs = append(errs, FieldError{Field: "analytics.async_buffer", Message: "buffer size must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "analytics.write_timeout", Message: "write timeout must not be negative"})
	}
	if cfg.MaxArgLength < 0 {
		errs = append(errs, FieldError{Field: "analytics.max_arg_length", Message: "max argument length must not be negative"})
	}
	if cfg.Backend == "sqlite" {
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "analytics.sqlite.path", Message: "path is required"})
		}
		if cfg.SQLite.Driver != storage.DriverModernc && cfg.SQLite.Driver != storage.DriverCGO {
			errs = append(errs, FieldError{
				Field:   "analytics.sqlite.driver",
				Message: fmt.Sprintf("must be %q or %q, got %q", storage.DriverModernc, storage.DriverCGO, cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{Field: "analytics.sqlite.max_idle_conns", Message: "must not exceed max_open_conns"})
		}
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "analytics.retention.days", Message: "retention days must not be negative"})
	}
	if cfg.Retention.MaxEvents < 0 {
		errs = append(errs, FieldError{Field: "analytics.retention.max_events", Message: "max events must not be negative"})
	}
	if cfg.Retention.Schedule != "" {
		if err := retention.ValidateSchedule(cfg.Retention.Schedule); err != nil {
			errs = append(errs, FieldError{Field: "analytics.retention.schedule", Message: err.Error()})
		}
	}
	if cfg.Retention.Archive && cfg.Retention.ArchivePath == "" {
		errs = append(errs, FieldError{Field: "analytics.retention.archive_path", Message: "archive path is required when archiving"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: err.Error()})
	}
	if _, err := logging.ParseFormat(cfg.Logging.Format); err != nil {
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: err.Error()})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: fmt.Sprintf("sample ratio must be between 0.0 and 1.0, got %g", cfg.Tracing.SampleRatio),
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}
	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError
	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must not be negative"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must not be negative"})
	}
	return errs
}
