package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"radium-hq/toolgate/pkg/alerts"
	"radium-hq/toolgate/pkg/analytics"
	"radium-hq/toolgate/pkg/analytics/recorder"
	"radium-hq/toolgate/pkg/analytics/storage"
	"radium-hq/toolgate/pkg/config"
	"radium-hq/toolgate/pkg/policy/engine"
	"radium-hq/toolgate/pkg/policy/hooks"
	"radium-hq/toolgate/pkg/telemetry/metrics"
	"radium-hq/toolgate/pkg/telemetry/tracing"
)

// application is a fully wired engine with its sinks.
type application struct {
	cfg    *config.Config
	logger *slog.Logger

	engine    *engine.Engine
	hooks     *hooks.Registry
	alerts    *alerts.Manager
	storage   analytics.Storage
	recorder  *recorder.Recorder
	collector *metrics.Collector
	tracer    *tracing.Tracer
}

type appOptions struct {
	// metrics adds the Prometheus collector as an analytics sink.
	metrics bool

	// tracing starts the OTLP tracer when enabled in the config.
	tracing bool
}

// newApplication loads the policy file and wires the engine to the sinks
// enabled in cfg. Close releases everything it opened.
func newApplication(cfg *config.Config, logger *slog.Logger, opts appOptions) (_ *application, err error) {
	app := &application{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	if opts.metrics && cfg.Telemetry.Metrics.Enabled {
		app.collector = metrics.NewCollector(cfg.MetricsConfig(), nil).WithRuntimeMetrics()
	}

	if opts.tracing {
		app.tracer, err = tracing.New(cfg.TracingConfig(Version))
		if err != nil {
			return nil, fmt.Errorf("failed to start tracer: %w", err)
		}
	}

	engineOpts := []engine.Option{
		engine.WithConfig(cfg.EngineConfig()),
		engine.WithLogger(logger),
	}

	app.hooks = hooks.NewRegistry(logger)
	if err = registerBuiltinHooks(app.hooks, logger); err != nil {
		return nil, err
	}
	engineOpts = append(engineOpts, engine.WithHooks(app.hooks))

	if cfg.Alerts.Enabled {
		var alertOpts []alerts.Option
		alertOpts = append(alertOpts, alerts.WithLogger(logger))
		if app.collector != nil {
			collector := app.collector
			alertOpts = append(alertOpts, alerts.WithObserver(func(s alerts.Severity, err error) {
				collector.RecordAlert(string(s), err)
			}))
		}
		app.alerts = alerts.New(cfg.AlertsConfig(), alertOpts...)
		engineOpts = append(engineOpts, engine.WithAlerts(app.alerts))
	}

	var sinks []engine.AnalyticsSink
	if cfg.Analytics.Enabled {
		app.storage, err = openStorage(cfg)
		if err != nil {
			return nil, err
		}
		app.recorder = recorder.NewRecorder(app.storage, cfg.RecorderConfig())
		sinks = append(sinks, app.recorder)
	}
	if app.collector != nil {
		sinks = append(sinks, app.collector)
	}
	engineOpts = append(engineOpts, engine.WithAnalytics(sinks...))

	if app.tracer != nil {
		engineOpts = append(engineOpts, engine.WithTracer(app.tracer.Tracer()))
	}

	app.engine, err = engine.NewFromFile(cfg.Policy.File, engineOpts...)
	if err != nil {
		return nil, err
	}

	if app.collector != nil {
		app.collector.UpdatePolicyState(app.engine.RuleCount(), len(app.engine.DetectConflicts()), app.engine.Generation())
	}

	return app, nil
}

// Close flushes the recorder, closes storage and shuts the tracer down.
func (app *application) Close(ctx context.Context) error {
	var errs []error
	if app.recorder != nil {
		errs = append(errs, app.recorder.Close())
	}
	if app.storage != nil {
		errs = append(errs, app.storage.Close())
	}
	if app.tracer != nil {
		errs = append(errs, app.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// openStorage opens the configured analytics backend.
func openStorage(cfg *config.Config) (analytics.Storage, error) {
	switch cfg.Analytics.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		s, err := storage.NewSQLiteStorage(cfg.SQLiteConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to open analytics database: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown analytics backend %q", cfg.Analytics.Backend)
}

// registerBuiltinHooks installs the hooks every application carries.
func registerBuiltinHooks(r *hooks.Registry, logger *slog.Logger) error {
	return r.Register(hooks.AfterTool, "log-tool-result", 0, hooks.HookFunc(
		func(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
			attrs := []any{"tool", hc.ToolName}
			if hc.Result != nil {
				attrs = append(attrs, "success", hc.Result.Success, "duration", hc.Result.Duration)
				if hc.Result.Error != "" {
					attrs = append(attrs, "tool_error", hc.Result.Error)
				}
			}
			logger.DebugContext(ctx, "tool executed", attrs...)
			return hooks.Continue(), nil
		}))
}
