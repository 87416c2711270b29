package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"radium-hq/toolgate/pkg/policy/engine"
	"radium-hq/toolgate/pkg/policy/hooks"
	"radium-hq/toolgate/pkg/policy/manager"
	"radium-hq/toolgate/pkg/server/middleware"
	"radium-hq/toolgate/pkg/telemetry/health"
	"radium-hq/toolgate/pkg/telemetry/tracing"
)

// Evaluator is the part of *engine.Engine the server needs.
type Evaluator interface {
	Evaluate(ctx context.Context, req engine.Request) (*engine.Decision, error)
	ExecuteAfterToolHooks(ctx context.Context, toolName string, args []string, result *hooks.ExecutionResult) ([]hooks.Result, error)
	Rules() []engine.Rule
	ApprovalMode() engine.ApprovalMode
	Generation() uint64
	DetectConflicts() []engine.Conflict
}

// Reloader re-reads the policy file on demand.
type Reloader interface {
	Reload(ctx context.Context) (manager.ReloadEvent, error)
}

// Config holds the listener settings.
type Config struct {
	ListenAddress   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// Server exposes policy evaluation over HTTP.
type Server struct {
	config     Config
	evaluator  Evaluator
	reloader   Reloader
	checker    *health.Checker
	metrics    http.Handler
	tracer     *tracing.Tracer
	logger     *slog.Logger
	version    [3]string
	httpServer *http.Server

	mu        sync.Mutex
	isRunning bool
	addr      net.Addr
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReloader enables POST /v1/reload.
func WithReloader(r Reloader) Option {
	return func(s *Server) { s.reloader = r }
}

// WithHealth mounts /healthz, /readyz and /version.
func WithHealth(c *health.Checker, version, commit, buildTime string) Option {
	return func(s *Server) {
		s.checker = c
		s.version = [3]string{version, commit, buildTime}
	}
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithTracer wraps the API routes in server spans.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// New creates a server. Call Start to listen.
func New(eval Evaluator, cfg Config, opts ...Option) *Server {
	s := &Server{
		config:    cfg,
		evaluator: eval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.ShutdownTimeout <= 0 {
		s.config.ShutdownTimeout = 30 * time.Second
	}
	return s
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.addr = ln.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting decision server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.WithoutCancel(ctx))
	case err, ok := <-errChan:
		s.setStopped()
		if !ok {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server, waiting at most the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning || s.httpServer == nil {
		s.mu.Unlock()
		return nil
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.setStopped()
	if err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("decision server stopped")
	return nil
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "POST /v1/evaluate", "/v1/evaluate", s.handleEvaluate)
	s.handle(mux, "POST /v1/after-tool", "/v1/after-tool", s.handleAfterTool)
	s.handle(mux, "GET /v1/rules", "/v1/rules", s.handleRules)
	s.handle(mux, "GET /v1/conflicts", "/v1/conflicts", s.handleConflicts)
	if s.reloader != nil {
		s.handle(mux, "POST /v1/reload", "/v1/reload", s.handleReload)
	}

	if s.checker != nil {
		s.checker.Mount(mux, s.version[0], s.version[1], s.version[2])
	}
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	return middleware.Chain(mux,
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.Identity,
		middleware.MaxBytes(s.config.MaxBodyBytes),
	)
}

func (s *Server) handle(mux *http.ServeMux, pattern, route string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if s.tracer != nil {
		h = tracing.HTTPMiddleware(s.tracer, route, h)
	}
	mux.Handle(pattern, h)
}
