// Package recorder turns policy decisions into analytics events and writes
// them to storage asynchronously.
//
// Recorder implements engine.AnalyticsSink. RecordEvent builds the event and
// enqueues it on a buffered channel; a background goroutine drains the
// channel into storage. Close drains pending events before returning.
//
// # Argument Handling
//
// Before storage, each argument is:
//
//   - hashed as a whole list with SHA-256 (ArgsHash), so identical calls can
//     be correlated even when values are redacted
//   - redacted when it carries a secret-looking assignment such as
//     "--password=hunter2" or "API_KEY=abc" (value replaced with "[REDACTED]")
//   - truncated to MaxArgLength characters
package recorder
