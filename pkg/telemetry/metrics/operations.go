package metrics

import "github.com/prometheus/client_golang/prometheus"

// OperationsMetrics tracks the machinery around the engine.
type OperationsMetrics struct {
	reloadsTotal  *prometheus.CounterVec
	alertsTotal   *prometheus.CounterVec
	prunedTotal   prometheus.Counter
	pruneFailures prometheus.Counter

	rules      prometheus.Gauge
	conflicts  prometheus.Gauge
	generation prometheus.Gauge
}

// NewOperationsMetrics creates and registers operations metrics.
func NewOperationsMetrics(cfg *Config, registry *prometheus.Registry) *OperationsMetrics {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help}
	}

	om := &OperationsMetrics{
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("policy_reloads_total", "Policy reload attempts by result")),
			[]string{"result"},
		),
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("alerts_total", "Alert webhook deliveries by severity and result")),
			[]string{"severity", "result"},
		),
		prunedTotal:   prometheus.NewCounter(prometheus.CounterOpts(opts("analytics_pruned_events_total", "Analytics events removed by retention"))),
		pruneFailures: prometheus.NewCounter(prometheus.CounterOpts(opts("analytics_prune_failures_total", "Failed retention runs"))),
		rules:         prometheus.NewGauge(prometheus.GaugeOpts(opts("policy_rules", "Number of live policy rules"))),
		conflicts:     prometheus.NewGauge(prometheus.GaugeOpts(opts("policy_conflicts", "Number of conflicts in the live policy"))),
		generation:    prometheus.NewGauge(prometheus.GaugeOpts(opts("policy_generation", "Generation of the live policy"))),
	}

	registry.MustRegister(
		om.reloadsTotal,
		om.alertsTotal,
		om.prunedTotal,
		om.pruneFailures,
		om.rules,
		om.conflicts,
		om.generation,
	)

	return om
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordReload counts a reload attempt.
func (om *OperationsMetrics) RecordReload(ok bool) {
	om.reloadsTotal.WithLabelValues(result(ok)).Inc()
}

// RecordAlert counts an alert delivery.
func (om *OperationsMetrics) RecordAlert(severity string, ok bool) {
	om.alertsTotal.WithLabelValues(severity, result(ok)).Inc()
}

// RecordPrune counts a retention run.
func (om *OperationsMetrics) RecordPrune(deleted int64, ok bool) {
	if !ok {
		om.pruneFailures.Inc()
	}
	if deleted > 0 {
		om.prunedTotal.Add(float64(deleted))
	}
}

// UpdatePolicyState sets the policy gauges.
func (om *OperationsMetrics) UpdatePolicyState(rules, conflicts int, generation uint64) {
	om.rules.Set(float64(rules))
	om.conflicts.Set(float64(conflicts))
	om.generation.Set(float64(generation))
}
