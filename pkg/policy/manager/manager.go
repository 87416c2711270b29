package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"radium-hq/toolgate/pkg/policy/engine"
)

// Config contains configuration for policy hot reload.
type Config struct {
	// Path is the TOML policy file.
	Path string

	// Watch enables reloading when the file changes.
	Watch bool

	// Debounce is the quiet period after the last file event before a
	// reload. Default: 200ms
	Debounce time.Duration

	// RejectConflicts refuses a policy whose rules conflict.
	RejectConflicts bool
}

// ReloadEvent describes one reload attempt.
type ReloadEvent struct {
	Path       string
	Time       time.Time
	Duration   time.Duration
	Generation uint64
	RuleCount  int
	Conflicts  int

	// Err is nil when the new rules were installed.
	Err error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithReloadCallback registers fn to run after every reload attempt,
// successful or not.
func WithReloadCallback(fn func(ReloadEvent)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.callbacks = append(m.callbacks, fn)
		}
	}
}

// Manager keeps an engine's rules in sync with a policy file. A reload loads
// and validates the file into a candidate engine and installs it with
// UpdateFrom; any failure leaves the running rules untouched.
type Manager struct {
	config    Config
	engine    *engine.Engine
	logger    *slog.Logger
	callbacks []func(ReloadEvent)

	// reloadMu serializes reloads.
	reloadMu sync.Mutex

	mu   sync.RWMutex
	last ReloadEvent
}

// New creates a manager for eng.
func New(eng *engine.Engine, cfg Config, opts ...Option) (*Manager, error) {
	if eng == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if cfg.Path == "" {
		return nil, errors.New("policy path cannot be empty")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}

	m := &Manager{
		config: cfg,
		engine: eng,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "policy.manager")
	return m, nil
}

// Reload reads the policy file and, if it is valid, replaces the engine's
// approval mode and rules. On error the engine is unchanged and the error is
// a *ReloadError.
func (m *Manager) Reload(ctx context.Context) (ReloadEvent, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	start := time.Now()
	ev := ReloadEvent{Path: m.config.Path, Time: start}

	err := ctx.Err()
	if err == nil {
		err = m.apply(&ev)
	}
	ev.Duration = time.Since(start)
	if err != nil {
		ev.Err = &ReloadError{Path: m.config.Path, Cause: err}
		ev.Generation = m.engine.Generation()
		ev.RuleCount = m.engine.RuleCount()
		m.logger.Error("policy reload failed, keeping current rules",
			"path", m.config.Path,
			"error", err,
			"rule_count", ev.RuleCount,
		)
	} else {
		m.logger.Info("policy reloaded",
			"path", m.config.Path,
			"rule_count", ev.RuleCount,
			"conflicts", ev.Conflicts,
			"generation", ev.Generation,
			"duration_ms", ev.Duration.Milliseconds(),
		)
	}

	m.mu.Lock()
	m.last = ev
	m.mu.Unlock()

	for _, fn := range m.callbacks {
		fn(ev)
	}
	return ev, ev.Err
}

func (m *Manager) apply(ev *ReloadEvent) error {
	policy, err := engine.LoadFile(m.config.Path)
	if err != nil {
		return err
	}

	candidate, err := engine.New(*policy, engine.WithLogger(m.logger))
	if err != nil {
		return err
	}

	conflicts := candidate.DetectConflicts()
	ev.Conflicts = len(conflicts)
	if len(conflicts) > 0 {
		if m.config.RejectConflicts {
			return &ConflictError{Conflicts: conflicts}
		}
		for _, c := range conflicts {
			m.logger.Warn("policy rules conflict",
				"rule1", c.Rule1.Name,
				"rule2", c.Rule2.Name,
				"example_tool", c.ExampleTool,
			)
		}
	}

	m.engine.UpdateFrom(candidate)
	ev.Generation = m.engine.Generation()
	ev.RuleCount = m.engine.RuleCount()
	return nil
}

// Watch blocks until ctx is cancelled, reloading the policy whenever the file
// changes. It returns immediately when watching is disabled. Reload failures
// are logged and reported to callbacks; they do not stop the watch.
func (m *Manager) Watch(ctx context.Context) error {
	if !m.config.Watch {
		return nil
	}

	fw, err := NewFileWatcher(m.config.Path, m.config.Debounce, m.logger)
	if err != nil {
		return err
	}
	return fw.Watch(ctx, func() {
		_, _ = m.Reload(ctx)
	})
}

// LastReload returns the most recent reload attempt. The zero event means no
// reload has happened.
func (m *Manager) LastReload() ReloadEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Engine returns the managed engine.
func (m *Manager) Engine() *engine.Engine {
	return m.engine
}
