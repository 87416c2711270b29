package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"radium-hq/toolgate/pkg/analytics"
)

// MemoryStorage implements analytics.Storage in memory.
type MemoryStorage struct {
	events  []*analytics.Event
	metrics map[string]*analytics.RuleMetrics
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		metrics: make(map[string]*analytics.RuleMetrics),
	}
}

// Store keeps a copy of the event.
func (s *MemoryStorage) Store(ctx context.Context, event *analytics.Event) error {
	if err := ctx.Err(); err != nil {
		return analytics.NewStorageError("memory", "store", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, copyEvent(event))

	if event.MatchedRule != "" {
		m, ok := s.metrics[event.MatchedRule]
		if !ok {
			m = &analytics.RuleMetrics{RuleName: event.MatchedRule}
			s.metrics[event.MatchedRule] = m
		}
		m.Add(event.Action, time.Now())
	}

	return nil
}

// Query retrieves events matching the query filters.
func (s *MemoryStorage) Query(ctx context.Context, query *analytics.Query) ([]*analytics.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selectLocked(query), nil
}

// QueryStream streams the result of Query over a channel.
func (s *MemoryStorage) QueryStream(ctx context.Context, query *analytics.Query) (<-chan *analytics.Event, <-chan error, error) {
	s.mu.RLock()
	results := s.selectLocked(query)
	s.mu.RUnlock()

	eventsCh := make(chan *analytics.Event, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventsCh)
		defer close(errCh)

		for _, e := range results {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case eventsCh <- e:
			}
		}
	}()

	return eventsCh, errCh, nil
}

// Count returns the number of events matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *analytics.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, e := range s.events {
		if query.Matches(e) {
			count++
		}
	}
	return count, nil
}

// Delete removes events matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *analytics.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64
	for _, e := range s.events {
		if query.Matches(e) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.events); i++ {
		s.events[i] = nil
	}
	s.events = kept

	return deleted, nil
}

// RuleMetrics returns per-rule counters, most evaluated first.
func (s *MemoryStorage) RuleMetrics(ctx context.Context) ([]analytics.RuleMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]analytics.RuleMetrics, 0, len(s.metrics))
	for _, m := range s.metrics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalEvaluations != out[j].TotalEvaluations {
			return out[i].TotalEvaluations > out[j].TotalEvaluations
		}
		return out[i].RuleName < out[j].RuleName
	})
	return out, nil
}

// ViolationTrends returns violations per UTC day since the given time.
func (s *MemoryStorage) ViolationTrends(ctx context.Context, since time.Time) ([]analytics.TrendPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[string]int64)
	for _, e := range s.events {
		if e.Timestamp.Before(since) || !e.IsViolation() {
			continue
		}
		byDay[e.Timestamp.UTC().Format("2006-01-02")]++
	}

	out := make([]analytics.TrendPoint, 0, len(byDay))
	for day, n := range byDay {
		out = append(out, analytics.TrendPoint{Date: day, Violations: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Close releases resources held by the storage backend.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = nil
	s.metrics = make(map[string]*analytics.RuleMetrics)
	return nil
}

// Size returns the number of stored events.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events)
}

func (s *MemoryStorage) selectLocked(query *analytics.Query) []*analytics.Event {
	results := []*analytics.Event{}
	for _, e := range s.events {
		if query.Matches(e) {
			results = append(results, copyEvent(e))
		}
	}

	asc := query.SortOrder == "asc"
	sort.SliceStable(results, func(i, j int) bool {
		if asc {
			return results[i].Timestamp.Before(results[j].Timestamp)
		}
		return results[i].Timestamp.After(results[j].Timestamp)
	})

	if query.Offset >= len(results) {
		return []*analytics.Event{}
	}
	results = results[query.Offset:]
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}
	return results
}

func copyEvent(e *analytics.Event) *analytics.Event {
	c := *e
	c.Arguments = append([]string(nil), e.Arguments...)
	return &c
}
