package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"radium-hq/toolgate/pkg/policy/engine"
)

// Config contains configuration for the collector.
type Config struct {
	Enabled   bool
	Namespace string // Default: "toolgate"
	Subsystem string
}

// Collector owns the registry and every metric. It implements
// engine.AnalyticsSink.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	policy *PolicyMetrics
	ops    *OperationsMetrics

	rules *CardinalityLimiter
}

// NewCollector creates a collector. A nil registry gets a fresh one.
func NewCollector(cfg *Config, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &Config{Enabled: true}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "toolgate"
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		policy:   NewPolicyMetrics(cfg, registry),
		ops:      NewOperationsMetrics(cfg, registry),
		rules:    NewCardinalityLimiter(1000),
	}
}

// RecordEvent counts one engine decision.
func (c *Collector) RecordEvent(_ context.Context, d *engine.Decision, _ string, _ []string, _ map[string]string) error {
	if !c.config.Enabled {
		return nil
	}

	rule := d.MatchedRule
	switch {
	case rule == "":
		rule = "none"
	case !c.rules.Allow(rule):
		rule = "other"
	}

	c.policy.RecordDecision(string(d.Action), string(d.Source), rule, d.EvaluationTime)
	if d.HookFailure != "" {
		c.policy.RecordHookFailure()
	}
	return nil
}

// RecordReload counts a policy reload attempt.
func (c *Collector) RecordReload(err error) {
	if !c.config.Enabled {
		return
	}
	c.ops.RecordReload(err == nil)
}

// RecordAlert counts an alert delivery attempt.
func (c *Collector) RecordAlert(severity string, err error) {
	if !c.config.Enabled {
		return
	}
	c.ops.RecordAlert(severity, err == nil)
}

// RecordPrune counts events removed by retention.
func (c *Collector) RecordPrune(deleted int64, err error) {
	if !c.config.Enabled {
		return
	}
	c.ops.RecordPrune(deleted, err == nil)
}

// UpdatePolicyState sets the live rule count, conflict count and generation.
func (c *Collector) UpdatePolicyState(rules, conflicts int, generation uint64) {
	if !c.config.Enabled {
		return
	}
	c.ops.UpdatePolicyState(rules, conflicts, generation)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether the value is already tracked or still fits.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}

var _ engine.AnalyticsSink = (*Collector)(nil)
