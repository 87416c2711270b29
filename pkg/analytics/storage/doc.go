// Package storage provides analytics storage backends.
//
// MemoryStorage keeps events in process and suits tests and short-lived
// CLI runs. SQLiteStorage persists events in the policy_events table and
// per-rule counters in rule_metrics. It works with either SQLite driver:
//
//   - "sqlite" (modernc.org/sqlite, pure Go, default)
//   - "sqlite3" (github.com/mattn/go-sqlite3, requires cgo)
//
// A zero Limit in a query returns every matching event.
package storage
