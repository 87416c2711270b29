package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type entry struct {
	name     string
	typ      Type
	priority int
	hook     Hook
}

// Registry is a concurrency-safe, in-memory Pipeline. Hooks run in descending
// priority order; hooks with equal priority run in registration order.
type Registry struct {
	mu      sync.RWMutex
	hooks   []entry
	enabled map[string]bool
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		enabled: make(map[string]bool),
		logger:  logger.With("component", "hooks.registry"),
	}
}

// Register adds an enabled hook. Names must be unique across all types.
func (r *Registry) Register(typ Type, name string, priority int, h Hook) error {
	if name == "" {
		return fmt.Errorf("hook name cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("hook %q cannot be nil", name)
	}
	if typ != BeforeTool && typ != AfterTool {
		return fmt.Errorf("hook %q: unknown hook type %q", name, typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.hooks {
		if e.name == name {
			return fmt.Errorf("hook %q already registered", name)
		}
	}

	r.hooks = append(r.hooks, entry{name: name, typ: typ, priority: priority, hook: h})
	sort.SliceStable(r.hooks, func(i, j int) bool {
		return r.hooks[i].priority > r.hooks[j].priority
	})
	r.enabled[name] = true

	return nil
}

// Unregister removes a hook by name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.hooks {
		if e.name == name {
			r.hooks = append(r.hooks[:i], r.hooks[i+1:]...)
			delete(r.enabled, name)
			return nil
		}
	}
	return fmt.Errorf("hook %q not found", name)
}

// SetEnabled enables or disables a registered hook.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.enabled[name]; !ok {
		return fmt.Errorf("hook %q not found", name)
	}
	r.enabled[name] = enabled
	return nil
}

// IsEnabled reports whether the named hook is registered and enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[name]
}

// Names returns the registered hook names of a type in execution order.
func (r *Registry) Names(typ Type) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, e := range r.hooks {
		if e.typ == typ {
			names = append(names, e.name)
		}
	}
	return names
}

// Count returns the number of registered hooks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// Execute runs the enabled hooks of typ. Each hook receives its own copy of
// hc. Execution stops after the first result that does not continue.
//
// If a hook fails, Execute returns the results collected so far together
// with an *ExecutionError.
func (r *Registry) Execute(ctx context.Context, typ Type, hc *Context) ([]Result, error) {
	r.mu.RLock()
	var run []entry
	for _, e := range r.hooks {
		if e.typ == typ && r.enabled[e.name] {
			run = append(run, e)
		}
	}
	r.mu.RUnlock()

	results := make([]Result, 0, len(run))
	for _, e := range run {
		if err := ctx.Err(); err != nil {
			return results, &ExecutionError{Hook: e.name, Type: typ, Cause: err}
		}

		start := time.Now()
		res, err := e.hook.Run(ctx, hc.Clone())
		r.logger.Debug("hook executed",
			"hook", e.name,
			"type", string(typ),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if err != nil {
			return results, &ExecutionError{Hook: e.name, Type: typ, Cause: err}
		}

		results = append(results, res)
		if !res.Continue {
			break
		}
	}

	return results, nil
}
