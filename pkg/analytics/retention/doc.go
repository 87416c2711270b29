// Package retention prunes old analytics events.
//
// Pruning runs in two phases:
//
//  1. Age: delete events older than RetentionDays
//  2. Count: if more than MaxEvents remain, delete the oldest
//
// Events can be archived as JSON before deletion. The Scheduler runs the
// pruner on a standard five-field cron expression (for example "0 3 * * *"
// for daily at 3 AM).
package retention
