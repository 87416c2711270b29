package analytics

import (
	"context"
	"io"
	"time"

	"radium-hq/toolgate/pkg/policy/engine"
)

// Event is one recorded policy decision.
type Event struct {
	// Identity
	ID         string `json:"id"`          // UUID v4
	DecisionID string `json:"decision_id"` // From the engine decision

	Timestamp time.Time `json:"timestamp"`

	// Effective tool call
	ToolName  string   `json:"tool_name"`
	Arguments []string `json:"arguments"`
	ArgsHash  string   `json:"args_hash,omitempty"` // SHA-256 of the unredacted arguments

	// Decision
	Action      string `json:"action"`
	MatchedRule string `json:"matched_rule,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Source      string `json:"source"`
	Mode        string `json:"mode"`
	Generation  uint64 `json:"generation"`
	HookFailure string `json:"hook_failure,omitempty"`

	// Caller
	User      string `json:"user,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	EvaluationTime time.Duration `json:"evaluation_time"`
}

// IsViolation reports whether the event records anything other than an allow.
func (e *Event) IsViolation() bool {
	return engine.Action(e.Action) != engine.ActionAllow
}

// RuleMetrics are lifetime counters for one rule.
type RuleMetrics struct {
	RuleName         string    `json:"rule_name"`
	TotalEvaluations int64     `json:"total_evaluations"`
	AllowCount       int64     `json:"allow_count"`
	DenyCount        int64     `json:"deny_count"`
	AskCount         int64     `json:"ask_count"`
	DryRunCount      int64     `json:"dry_run_count"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Add counts one decision with the given action.
func (m *RuleMetrics) Add(action string, at time.Time) {
	m.TotalEvaluations++
	switch engine.Action(action) {
	case engine.ActionAllow:
		m.AllowCount++
	case engine.ActionDeny:
		m.DenyCount++
	case engine.ActionAskUser:
		m.AskCount++
	case engine.ActionDryRunFirst:
		m.DryRunCount++
	}
	m.LastUpdated = at
}

// TrendPoint is the number of violations on one UTC day.
type TrendPoint struct {
	Date       string `json:"date"` // YYYY-MM-DD
	Violations int64  `json:"violations"`
}

// Query defines filter parameters for querying events.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	ToolName       string `json:"tool_name,omitempty"`
	Action         string `json:"action,omitempty"`
	MatchedRule    string `json:"matched_rule,omitempty"`
	User           string `json:"user,omitempty"`
	ViolationsOnly bool   `json:"violations_only,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`  // Max events to return
	Offset int `json:"offset,omitempty"` // Skip N events

	// Sorting by timestamp: "asc" or "desc"
	SortOrder string `json:"sort_order,omitempty"`
}

// Matches reports whether e passes the query filters. Pagination is ignored.
func (q *Query) Matches(e *Event) bool {
	if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.ToolName != "" && e.ToolName != q.ToolName {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.MatchedRule != "" && e.MatchedRule != q.MatchedRule {
		return false
	}
	if q.User != "" && e.User != q.User {
		return false
	}
	if q.ViolationsOnly && !e.IsViolation() {
		return false
	}
	return true
}

// Storage defines the interface for analytics storage backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists an event and updates the matched rule's counters.
	Store(ctx context.Context, event *Event) error

	// Query retrieves events matching the query filters.
	// Returns an empty slice if no events match.
	Query(ctx context.Context, query *Query) ([]*Event, error)

	// QueryStream returns a channel of events for large result sets.
	// Both channels are closed when the query completes or fails.
	QueryStream(ctx context.Context, query *Query) (<-chan *Event, <-chan error, error)

	// Count returns the number of events matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes events matching the query filters and returns how many
	// were removed. Rule counters are unaffected.
	Delete(ctx context.Context, query *Query) (int64, error)

	// RuleMetrics returns per-rule counters ordered by total evaluations,
	// highest first.
	RuleMetrics(ctx context.Context) ([]RuleMetrics, error)

	// ViolationTrends returns violations per UTC day since the given time,
	// oldest day first.
	ViolationTrends(ctx context.Context, since time.Time) ([]TrendPoint, error)

	// Close releases any resources held by the storage backend.
	Close() error
}

// Exporter writes events in some format.
type Exporter interface {
	Export(ctx context.Context, events []*Event, w io.Writer) error
}
