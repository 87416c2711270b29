// Package metrics provides Prometheus metrics for the policy engine.
//
// # Metrics Categories
//
//   - Decision metrics: decisions by action, source and rule, evaluation
//     latency, swallowed before-tool hook failures
//   - Operations metrics: policy reloads, alert deliveries, pruned analytics
//     events, live rule and conflict counts, policy generation
//
// # Usage
//
//	collector := metrics.NewCollector(&metrics.Config{Enabled: true}, nil)
//
//	eng, _ := engine.New(cfg, engine.WithAnalytics(collector, recorder))
//	http.Handle("/metrics", collector.Handler())
//
// The Collector implements engine.AnalyticsSink, so every decision the engine
// makes is counted without further wiring.
//
// # Cardinality
//
// Rule names are user-controlled labels. After 1000 distinct rule label
// values, new rules are counted under "other".
package metrics
