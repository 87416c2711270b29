package engine

import (
	"context"
	"errors"
)

// AlertSink is notified of every decision that is not ActionAllow.
// Errors are logged by the engine and never affect the decision.
type AlertSink interface {
	SendAlert(ctx context.Context, d *Decision, toolName string, args []string, metadata map[string]string) error
}

// AnalyticsSink is notified of every decision.
// Errors are logged by the engine and never affect the decision.
type AnalyticsSink interface {
	RecordEvent(ctx context.Context, d *Decision, toolName string, args []string, metadata map[string]string) error
}

type nopAlerts struct{}

func (nopAlerts) SendAlert(context.Context, *Decision, string, []string, map[string]string) error {
	return nil
}

type nopAnalytics struct{}

func (nopAnalytics) RecordEvent(context.Context, *Decision, string, []string, map[string]string) error {
	return nil
}

// MultiAnalytics fans an event out to several sinks.
type MultiAnalytics []AnalyticsSink

// RecordEvent records to every sink and joins their errors.
func (m MultiAnalytics) RecordEvent(ctx context.Context, d *Decision, toolName string, args []string, metadata map[string]string) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordEvent(ctx, d, toolName, args, metadata); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
