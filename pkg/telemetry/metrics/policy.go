package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PolicyMetrics tracks engine decisions.
//
// Metrics:
//   - toolgate_decisions_total: decisions by action, source and rule
//   - toolgate_evaluation_duration_seconds: evaluation latency by action
//   - toolgate_before_tool_hook_failures_total: failures absorbed under fail-open
type PolicyMetrics struct {
	decisionsTotal     *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	hookFailuresTotal  prometheus.Counter
}

// NewPolicyMetrics creates and registers decision metrics.
func NewPolicyMetrics(cfg *Config, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total number of policy decisions",
			},
			[]string{"action", "source", "rule"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of policy evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~0.5s
			},
			[]string{"action"},
		),

		hookFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "before_tool_hook_failures_total",
				Help:      "Before-tool hook failures that evaluation continued past",
			},
		),
	}

	registry.MustRegister(
		pm.decisionsTotal,
		pm.evaluationDuration,
		pm.hookFailuresTotal,
	)

	return pm
}

// RecordDecision records one decision.
func (pm *PolicyMetrics) RecordDecision(action, source, rule string, duration time.Duration) {
	pm.decisionsTotal.WithLabelValues(action, source, rule).Inc()
	pm.evaluationDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordHookFailure records a swallowed before-tool hook failure.
func (pm *PolicyMetrics) RecordHookFailure() {
	pm.hookFailuresTotal.Inc()
}
