package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"radium-hq/toolgate/pkg/analytics"
	"radium-hq/toolgate/pkg/analytics/retention"
	"radium-hq/toolgate/pkg/cli"
	"radium-hq/toolgate/pkg/policy/manager"
	"radium-hq/toolgate/pkg/server"
	"radium-hq/toolgate/pkg/telemetry/health"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the decision server",
	Long: `Start the HTTP decision server.

The server evaluates tool calls for agents running out of process, reloads
the policy file when it changes, records decisions to the analytics
database and prunes it on the retention schedule.

Routes:
  POST /v1/evaluate     evaluate a tool call
  POST /v1/after-tool   run after-tool hooks
  GET  /v1/rules        current rules
  GET  /v1/conflicts    rule conflicts
  POST /v1/reload       reload the policy file
  GET  /healthz /readyz /version /metrics

Examples:
  # Start with default config
  toolgate serve

  # Start with custom config
  toolgate serve --config /etc/toolgate/toolgate.yaml

  # Override listen address
  toolgate serve --listen 127.0.0.1:9000

  # Validate config and policy without starting
  toolgate serve --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config and policy without starting the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	app, err := newApplication(cfg, logger, appOptions{metrics: true, tracing: !serveFlags.dryRun})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			logger.Warn("failed to close application", "error", err)
		}
	}()

	if serveFlags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid (%d rules, approval mode %s)\n",
			app.engine.RuleCount(), app.engine.ApprovalMode())
		return nil
	}

	mgr, err := manager.New(app.engine, manager.Config{
		Path:            cfg.Policy.File,
		Watch:           cfg.Policy.Watch,
		Debounce:        cfg.Policy.Debounce,
		RejectConflicts: cfg.Policy.RejectConflicts,
	},
		manager.WithLogger(logger),
		manager.WithReloadCallback(func(ev manager.ReloadEvent) {
			if app.collector == nil {
				return
			}
			app.collector.RecordReload(ev.Err)
			if ev.Err == nil {
				app.collector.UpdatePolicyState(ev.RuleCount, ev.Conflicts, ev.Generation)
			}
		}),
	)
	if err != nil {
		return err
	}

	checker := newHealthChecker(mgr, app.storage)

	srvOpts := []server.Option{
		server.WithLogger(logger),
		server.WithReloader(mgr),
		server.WithHealth(checker, Version, GitCommit, BuildDate),
	}
	if app.tracer != nil && app.tracer.Enabled() {
		srvOpts = append(srvOpts, server.WithTracer(app.tracer))
	}
	separateMetrics := app.collector != nil && cfg.Telemetry.Metrics.ListenAddress != "" &&
		cfg.Telemetry.Metrics.ListenAddress != cfg.Server.ListenAddress
	if app.collector != nil && !separateMetrics {
		srvOpts = append(srvOpts, server.WithMetrics(app.collector.Handler()))
	}

	srv := server.New(app.engine, server.Config{
		ListenAddress:   cfg.Server.ListenAddress,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	}, srvOpts...)

	if app.storage != nil {
		scheduler := retention.NewScheduler(retention.NewPruner(app.storage, cfg.RetentionConfig()))
		if app.collector != nil {
			scheduler.OnPrune = app.collector.RecordPrune
		}
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	logger.Info("toolgate starting",
		"version", Version,
		"policy", cfg.Policy.File,
		"rules", app.engine.RuleCount(),
		"approval_mode", string(app.engine.ApprovalMode()),
		"watch", cfg.Policy.Watch,
		"analytics", cfg.Analytics.Enabled,
		"alerts", cfg.Alerts.Enabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return mgr.Watch(gctx) })
	if separateMetrics {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Telemetry.Metrics.ListenAddress, app.collector.Handler(), logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("toolgate stopped")
	return nil
}

// newHealthChecker registers the readiness checks of the serve command.
func newHealthChecker(mgr *manager.Manager, store analytics.Storage) *health.Checker {
	checker := health.New(2 * time.Second)
	checker.Register("policy", func(context.Context) error {
		if ev := mgr.LastReload(); ev.Err != nil {
			return fmt.Errorf("last reload failed: %w", ev.Err)
		}
		return nil
	})
	if store != nil {
		checker.Register("analytics", func(ctx context.Context) error {
			_, err := store.Count(ctx, &analytics.Query{Limit: 1})
			return err
		})
	}
	return checker
}

// serveMetrics exposes /metrics on its own listener until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting metrics listener", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("metrics listener: %w", err)
	}
}
