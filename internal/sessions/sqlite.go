package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coredispatch/agentcore/pkg/models"
)

// SQLiteStore implements Store on top of a local SQLite file, for
// single-process deployments that don't need a separate database server.
// Uses the pure-Go modernc.org/sqlite driver rather than a cgo binding, so
// the binary stays cross-compilable without a C toolchain.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers regardless; cap the pool to one connection
	// so concurrent callers queue instead of tripping "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	channel_id INTEGER NOT NULL,
	channel_type TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tool_calls TEXT,
	tool_call_id TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`

func (s *SQLiteStore) GetOrCreate(ctx context.Context, id string, channelID int64, channelType, chatID string) (models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, channel_id, channel_type, chat_id, created_at, updated_at FROM sessions WHERE id = ?`, id)
	var sess models.Session
	err := row.Scan(&sess.ID, &sess.ChannelID, &sess.ChannelType, &sess.ChatID, &sess.CreatedAt, &sess.UpdatedAt)
	if err == nil {
		return sess, nil
	}
	if err != sql.ErrNoRows {
		return models.Session{}, fmt.Errorf("get session: %w", err)
	}

	now := time.Now()
	sess = models.Session{ID: id, ChannelID: channelID, ChannelType: channelType, ChatID: chatID, CreatedAt: now, UpdatedAt: now}
	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (id, channel_id, channel_type, chat_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ChannelID, sess.ChannelType, sess.ChatID, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) AppendMessages(ctx context.Context, sessionID string, messages []models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()
	for _, m := range messages {
		toolCalls, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO messages (session_id, role, content, tool_calls, tool_call_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, m.Role, m.Content, string(toolCalls), m.ToolCallID, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) History(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_calls, tool_call_id, created_at FROM messages WHERE id IN (SELECT id FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?) ORDER BY id ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var toolCalls string
		if err := rows.Scan(&m.Role, &m.Content, &toolCalls, &m.ToolCallID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolCalls != "" {
			_ = json.Unmarshal([]byte(toolCalls), &m.ToolCalls)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
