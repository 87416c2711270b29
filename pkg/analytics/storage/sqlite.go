package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"radium-hq/toolgate/pkg/analytics"
)

const (
	// DriverModernc is the pure Go SQLite driver.
	DriverModernc = "sqlite"

	// DriverCGO is the cgo SQLite driver.
	DriverCGO = "sqlite3"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver: "sqlite" or "sqlite3".
	// Default: "sqlite"
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/policy-analytics.db",
		Driver:       DriverModernc,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements analytics.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database and creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverModernc
	}
	if config.Driver != DriverModernc && config.Driver != DriverCGO {
		return nil, analytics.NewStorageError("sqlite", "open",
			fmt.Errorf("unknown driver %q (want %q or %q)", config.Driver, DriverModernc, DriverCGO))
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "analytics.storage.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return analytics.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return analytics.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return analytics.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return analytics.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return analytics.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return analytics.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Store inserts the event and bumps the matched rule's counters in one
// transaction.
func (s *SQLiteStorage) Store(ctx context.Context, event *analytics.Event) error {
	args, err := json.Marshal(event.Arguments)
	if err != nil {
		return analytics.NewStorageError("sqlite", "store", err)
	}
	if event.Arguments == nil {
		args = []byte("[]")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return analytics.NewStorageError("sqlite", "store", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, insertEvent,
		event.ID, event.DecisionID, event.Timestamp.UnixNano(),
		event.ToolName, string(args), nullString(event.ArgsHash),
		event.Action, nullString(event.MatchedRule), nullString(event.Reason),
		event.Source, event.Mode, int64(event.Generation), nullString(event.HookFailure),
		nullString(event.User), nullString(event.SessionID),
		int64(event.EvaluationTime),
	)
	if err != nil {
		return analytics.NewStorageError("sqlite", "store", err)
	}

	if event.MatchedRule != "" {
		if _, err := tx.ExecContext(ctx, upsertRuleMetrics, event.MatchedRule, event.Action, time.Now().UnixNano()); err != nil {
			return analytics.NewStorageError("sqlite", "update_rule_metrics", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return analytics.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query retrieves events matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *analytics.Query) ([]*analytics.Event, error) {
	sqlQuery, args := s.buildSelect(query)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	events := []*analytics.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, analytics.NewStorageError("sqlite", "scan", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, analytics.NewStorageError("sqlite", "query", err)
	}

	return events, nil
}

// QueryStream returns a channel of events for large result sets.
func (s *SQLiteStorage) QueryStream(ctx context.Context, query *analytics.Query) (<-chan *analytics.Event, <-chan error, error) {
	eventsCh := make(chan *analytics.Event, 100)
	errCh := make(chan error, 1)

	sqlQuery, args := s.buildSelect(query)

	go func() {
		defer close(eventsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- analytics.NewStorageError("sqlite", "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				errCh <- analytics.NewStorageError("sqlite", "scan", err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case eventsCh <- e:
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- analytics.NewStorageError("sqlite", "query_stream", err)
		}
	}()

	return eventsCh, errCh, nil
}

// Count returns the number of events matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *analytics.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM policy_events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, analytics.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes events matching the query filters.
func (s *SQLiteStorage) Delete(ctx context.Context, query *analytics.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "DELETE FROM policy_events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, analytics.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, analytics.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// RuleMetrics returns per-rule counters, most evaluated first.
func (s *SQLiteStorage) RuleMetrics(ctx context.Context) ([]analytics.RuleMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_name, total_evaluations, allow_count, deny_count, ask_count, dry_run_count, last_updated
		FROM rule_metrics
		ORDER BY total_evaluations DESC, rule_name ASC`)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "rule_metrics", err)
	}
	defer rows.Close()

	out := []analytics.RuleMetrics{}
	for rows.Next() {
		var m analytics.RuleMetrics
		var updated int64
		if err := rows.Scan(&m.RuleName, &m.TotalEvaluations, &m.AllowCount, &m.DenyCount, &m.AskCount, &m.DryRunCount, &updated); err != nil {
			return nil, analytics.NewStorageError("sqlite", "scan", err)
		}
		m.LastUpdated = time.Unix(0, updated)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, analytics.NewStorageError("sqlite", "rule_metrics", err)
	}
	return out, nil
}

// ViolationTrends returns violations per UTC day since the given time.
func (s *SQLiteStorage) ViolationTrends(ctx context.Context, since time.Time) ([]analytics.TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(timestamp / 1000000000, 'unixepoch') AS day, COUNT(*)
		FROM policy_events
		WHERE timestamp >= ? AND action <> 'allow'
		GROUP BY day
		ORDER BY day ASC`, since.UnixNano())
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "violation_trends", err)
	}
	defer rows.Close()

	out := []analytics.TrendPoint{}
	for rows.Next() {
		var p analytics.TrendPoint
		if err := rows.Scan(&p.Date, &p.Violations); err != nil {
			return nil, analytics.NewStorageError("sqlite", "scan", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, analytics.NewStorageError("sqlite", "violation_trends", err)
	}
	return out, nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return analytics.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

func (s *SQLiteStorage) buildSelect(query *analytics.Query) (string, []any) {
	where, args := buildWhereClause(query)

	sqlQuery := "SELECT " + eventColumns + " FROM policy_events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	order := "DESC"
	if query.SortOrder == "asc" {
		order = "ASC"
	}
	sqlQuery += " ORDER BY timestamp " + order + ", rowid " + order

	switch {
	case query.Limit > 0:
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
	case query.Offset > 0:
		sqlQuery += " LIMIT -1"
	}
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	return sqlQuery, args
}

// buildWhereClause returns the WHERE clause (without the keyword) and its
// arguments.
func buildWhereClause(query *analytics.Query) (string, []any) {
	var conditions []string
	var args []any

	if query.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, query.EndTime.UnixNano())
	}
	if query.ToolName != "" {
		conditions = append(conditions, "tool_name = ?")
		args = append(args, query.ToolName)
	}
	if query.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, query.Action)
	}
	if query.MatchedRule != "" {
		conditions = append(conditions, "matched_rule = ?")
		args = append(args, query.MatchedRule)
	}
	if query.User != "" {
		conditions = append(conditions, "user = ?")
		args = append(args, query.User)
	}
	if query.ViolationsOnly {
		conditions = append(conditions, "action <> 'allow'")
	}

	return strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*analytics.Event, error) {
	var e analytics.Event
	var ts, generation, evalTime int64
	var args string
	var argsHash, matchedRule, reason, hookFailure, user, sessionID sql.NullString

	err := row.Scan(
		&e.ID, &e.DecisionID, &ts,
		&e.ToolName, &args, &argsHash,
		&e.Action, &matchedRule, &reason, &e.Source, &e.Mode, &generation, &hookFailure,
		&user, &sessionID,
		&evalTime,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(args), &e.Arguments); err != nil {
		return nil, fmt.Errorf("decode arguments of event %s: %w", e.ID, err)
	}
	e.Timestamp = time.Unix(0, ts)
	e.Generation = uint64(generation)
	e.EvaluationTime = time.Duration(evalTime)
	e.ArgsHash = argsHash.String
	e.MatchedRule = matchedRule.String
	e.Reason = reason.String
	e.HookFailure = hookFailure.String
	e.User = user.String
	e.SessionID = sessionID.String

	return &e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
