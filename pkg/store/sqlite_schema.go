package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the usage table, its indexes and the schema version table.
const Schema = `
CREATE TABLE IF NOT EXISTS usage_records (
    date_partition TEXT NOT NULL,
    timestamp_agent TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    request_id TEXT,
    agent_id TEXT NOT NULL,
    model_id TEXT NOT NULL,
    incident_id TEXT,
    input_tokens INTEGER NOT NULL,
    output_tokens INTEGER NOT NULL,
    total_tokens INTEGER NOT NULL,
    estimated_cost REAL NOT NULL,
    context TEXT,
    expires_at INTEGER NOT NULL,
    PRIMARY KEY (date_partition, timestamp_agent)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_agent_timestamp ON usage_records(agent_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_usage_incident_timestamp ON usage_records(incident_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_usage_expires_at ON usage_records(expires_at);
`

// InsertSchemaVersion records the schema version once.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion returns the newest applied schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const upsertRecord = `
INSERT OR REPLACE INTO usage_records (
    date_partition, timestamp_agent, timestamp, request_id,
    agent_id, model_id, incident_id,
    input_tokens, output_tokens, total_tokens, estimated_cost,
    context, expires_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `
SELECT date_partition, timestamp_agent, timestamp, request_id,
    agent_id, model_id, incident_id,
    input_tokens, output_tokens, total_tokens, estimated_cost,
    context, expires_at
FROM usage_records
`
