package sessions

import "database/sql"

// PostgresSchema creates the two-table schema PostgresStore assumes, for
// deployments that don't already manage it with an external migration
// tool. Safe to run repeatedly.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	channel_id BIGINT NOT NULL,
	channel_type TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tool_calls JSONB,
	tool_call_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`

// MigratePostgres applies PostgresSchema against db.
func MigratePostgres(db *sql.DB) error {
	_, err := db.Exec(PostgresSchema)
	return err
}
