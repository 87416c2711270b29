package analytics

import (
	"errors"
	"fmt"

	"radium-hq/toolgate/pkg/policy/engine"
)

const (
	// DefaultLimit is the number of events returned when Limit is zero.
	DefaultLimit = 100

	// MaxLimit is the maximum number of events a single query may return.
	MaxLimit = 10000
)

// Validate checks the query parameters.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	if q.SortOrder != "" && q.SortOrder != "asc" && q.SortOrder != "desc" {
		return NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return NewQueryError(q, errors.New("start_time must be before end_time"))
	}
	if q.Action != "" {
		if _, err := engine.ParseAction(q.Action); err != nil {
			return NewQueryError(q, err)
		}
	}
	return nil
}

// ApplyDefaults fills in the default limit and sort order.
func (q *Query) ApplyDefaults() {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}
