package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TOOLGATE_"

// LoadConfig loads configuration from a YAML file. Keys absent from the file
// keep their defaults, unknown keys are rejected, and the result is
// validated. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and applies defaults. It does not
// validate.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides named TOOLGATE_SECTION_FIELD (for example
// TOOLGATE_SERVER_LISTEN_ADDRESS). Environment variables take precedence
// over the file. An empty path starts from the defaults.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies TOOLGATE_* variables. A variable that is set but
// cannot be parsed is an error.
func applyEnvOverrides(cfg *Config) error {
	e := &envReader{}

	// Policy overrides
	e.str("POLICY_FILE", &cfg.Policy.File)
	e.boolean("POLICY_WATCH", &cfg.Policy.Watch)
	e.duration("POLICY_DEBOUNCE", &cfg.Policy.Debounce)
	e.boolean("POLICY_REJECT_CONFLICTS", &cfg.Policy.RejectConflicts)

	// Engine overrides
	e.duration("ENGINE_HOOK_TIMEOUT", &cfg.Engine.HookTimeout)
	e.duration("ENGINE_SINK_TIMEOUT", &cfg.Engine.SinkTimeout)
	e.duration("ENGINE_PREVIEW_TIMEOUT", &cfg.Engine.PreviewTimeout)
	e.str("ENGINE_BEFORE_TOOL_FAILURE", &cfg.Engine.BeforeToolFailure)

	// Alerts overrides
	e.boolean("ALERTS_ENABLED", &cfg.Alerts.Enabled)
	e.integer("ALERTS_RATE_LIMIT_PER_MINUTE", &cfg.Alerts.RateLimitPerMinute)
	e.duration("ALERTS_TIMEOUT", &cfg.Alerts.Timeout)
	var url string
	if e.str("ALERTS_WEBHOOK_URL", &url) {
		wh := WebhookConfig{URL: url, MinSeverity: DefaultWebhookMinSeverity}
		e.str("ALERTS_WEBHOOK_TOKEN", &wh.Token)
		e.str("ALERTS_WEBHOOK_MIN_SEVERITY", &wh.MinSeverity)
		cfg.Alerts.Webhooks = append(cfg.Alerts.Webhooks, wh)
	}

	// Analytics overrides
	e.boolean("ANALYTICS_ENABLED", &cfg.Analytics.Enabled)
	e.str("ANALYTICS_BACKEND", &cfg.Analytics.Backend)
	e.integer("ANALYTICS_ASYNC_BUFFER", &cfg.Analytics.AsyncBuffer)
	e.duration("ANALYTICS_WRITE_TIMEOUT", &cfg.Analytics.WriteTimeout)
	e.str("ANALYTICS_SQLITE_PATH", &cfg.Analytics.SQLite.Path)
	e.str("ANALYTICS_SQLITE_DRIVER", &cfg.Analytics.SQLite.Driver)
	e.integer("ANALYTICS_RETENTION_DAYS", &cfg.Analytics.Retention.Days)
	e.str("ANALYTICS_RETENTION_SCHEDULE", &cfg.Analytics.Retention.Schedule)

	// Telemetry overrides
	e.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	e.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	e.boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	e.str("TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	e.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	e.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	e.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	// Server overrides
	e.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)

	return errors.Join(e.errs...)
}

type envReader struct {
	errs []error
}

func (e *envReader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	return v, ok && v != ""
}

func (e *envReader) fail(name, val string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, val, err))
}

func (e *envReader) str(name string, dst *string) bool {
	v, ok := e.lookup(name)
	if ok {
		*dst = v
	}
	return ok
}

func (e *envReader) boolean(name string, dst *bool) {
	if v, ok := e.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(name string, dst *int) {
	if v, ok := e.lookup(name); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = i
	}
}

func (e *envReader) float(name string, dst *float64) {
	if v, ok := e.lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = d
	}
}
