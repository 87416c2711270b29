package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the analytics tables. Timestamps are Unix nanoseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS policy_events (
    id TEXT PRIMARY KEY,
    decision_id TEXT NOT NULL,
    timestamp INTEGER NOT NULL,

    tool_name TEXT NOT NULL,
    arguments TEXT NOT NULL,
    args_hash TEXT,

    action TEXT NOT NULL,
    matched_rule TEXT,
    reason TEXT,
    source TEXT NOT NULL,
    mode TEXT NOT NULL,
    generation INTEGER NOT NULL,
    hook_failure TEXT,

    user TEXT,
    session_id TEXT,

    evaluation_time INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rule_metrics (
    rule_name TEXT PRIMARY KEY,
    total_evaluations INTEGER NOT NULL DEFAULT 0,
    allow_count INTEGER NOT NULL DEFAULT 0,
    deny_count INTEGER NOT NULL DEFAULT 0,
    ask_count INTEGER NOT NULL DEFAULT 0,
    dry_run_count INTEGER NOT NULL DEFAULT 0,
    last_updated INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policy_events_timestamp ON policy_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_policy_events_tool_name ON policy_events(tool_name);
CREATE INDEX IF NOT EXISTS idx_policy_events_action ON policy_events(action);
CREATE INDEX IF NOT EXISTS idx_policy_events_matched_rule ON policy_events(matched_rule);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertEvent = `
INSERT INTO policy_events (
    id, decision_id, timestamp,
    tool_name, arguments, args_hash,
    action, matched_rule, reason, source, mode, generation, hook_failure,
    user, session_id,
    evaluation_time
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const upsertRuleMetrics = `
INSERT INTO rule_metrics (rule_name, total_evaluations, allow_count, deny_count, ask_count, dry_run_count, last_updated)
VALUES (?1, 1,
    CASE WHEN ?2 = 'allow' THEN 1 ELSE 0 END,
    CASE WHEN ?2 = 'deny' THEN 1 ELSE 0 END,
    CASE WHEN ?2 = 'ask_user' THEN 1 ELSE 0 END,
    CASE WHEN ?2 = 'dry_run_first' THEN 1 ELSE 0 END,
    ?3)
ON CONFLICT(rule_name) DO UPDATE SET
    total_evaluations = total_evaluations + 1,
    allow_count = allow_count + excluded.allow_count,
    deny_count = deny_count + excluded.deny_count,
    ask_count = ask_count + excluded.ask_count,
    dry_run_count = dry_run_count + excluded.dry_run_count,
    last_updated = excluded.last_updated
`

const eventColumns = `id, decision_id, timestamp, tool_name, arguments, args_hash,
    action, matched_rule, reason, source, mode, generation, hook_failure,
    user, session_id, evaluation_time`
