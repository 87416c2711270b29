// Package alerts delivers policy decisions that block or pause a tool call
// to webhooks.
//
// Severity follows the decision action: deny is critical, ask_user is a
// warning and dry_run_first is informational. Allowed calls never alert.
// Each webhook receives alerts at or above its minimum severity, and a
// per-manager token bucket caps deliveries per minute.
package alerts
