// Package analytics records policy decisions for audit and reporting.
//
// # Architecture
//
// The analytics system consists of four layers:
//
//  1. Recorder - turns engine decisions into events (package recorder)
//  2. Storage - persists events and per-rule counters (package storage)
//  3. Export - writes events as JSON or CSV (package export)
//  4. Retention - prunes old events on a cron schedule (package retention)
//
// # Events
//
// Each event captures the effective tool call, the action taken, the rule
// that decided it (if any), the approval mode in force and the identity of
// the caller taken from request metadata.
//
// # Rule Metrics
//
// Storage backends keep lifetime per-rule counters (evaluations, allows,
// denies, approval requests, dry runs). Counters are not reduced by
// retention pruning.
//
// # Violation Trends
//
// A violation is any decision other than allow. ViolationTrends groups
// violations by UTC day.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path: "data/policy-analytics.db",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	rec := recorder.NewRecorder(store, recorder.DefaultConfig())
//	defer rec.Close()
//
//	eng, _ := engine.New(cfg, engine.WithAnalytics(rec))
package analytics
