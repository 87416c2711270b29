package analytics

import "fmt"

// StorageError wraps a backend failure with the operation that hit it.
type StorageError struct {
	Backend   string // "sqlite" or "memory"
	Operation string // "store", "query", "delete", "rule_metrics", ...
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("analytics %s backend: %s failed: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// NewStorageError creates a StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// QueryError reports a Query that failed validation.
type QueryError struct {
	Query *Query
	Cause error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid analytics query: %v", e.Cause)
}

func (e *QueryError) Unwrap() error { return e.Cause }

// NewQueryError creates a QueryError.
func NewQueryError(query *Query, cause error) *QueryError {
	return &QueryError{Query: query, Cause: cause}
}

// RecorderError reports a decision event the recorder dropped instead of
// queueing. Cause is context.Canceled after Close and
// context.DeadlineExceeded when the buffer stayed full.
type RecorderError struct {
	EventID string
	Cause   error
}

func (e *RecorderError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("decision event dropped: %v", e.Cause)
	}
	return fmt.Sprintf("decision event %s dropped: %v", e.EventID, e.Cause)
}

func (e *RecorderError) Unwrap() error { return e.Cause }

// NewRecorderError creates a RecorderError.
func NewRecorderError(eventID string, cause error) *RecorderError {
	return &RecorderError{EventID: eventID, Cause: cause}
}

// RetentionError reports a failed age-based prune.
type RetentionError struct {
	RetentionDays int
	Cause         error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("pruning events older than %d days: %v", e.RetentionDays, e.Cause)
}

func (e *RetentionError) Unwrap() error { return e.Cause }

// NewRetentionError creates a RetentionError.
func NewRetentionError(retentionDays int, cause error) *RetentionError {
	return &RetentionError{RetentionDays: retentionDays, Cause: cause}
}

// ExportError reports a failed JSON or CSV export.
type ExportError struct {
	Format     string
	EventCount int
	Cause      error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("exporting %d events as %s: %v", e.EventCount, e.Format, e.Cause)
}

func (e *ExportError) Unwrap() error { return e.Cause }

// NewExportError creates an ExportError.
func NewExportError(format string, eventCount int, cause error) *ExportError {
	return &ExportError{Format: format, EventCount: eventCount, Cause: cause}
}
