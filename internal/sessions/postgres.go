package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/coredispatch/agentcore/pkg/models"
)

// PostgresConfig configures the connection pool backing a PostgresStore.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

func DefaultPostgresConfig(dsn string) PostgresConfig {
	return PostgresConfig{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore implements Store on top of Postgres (or a Postgres-wire
// compatible database), with prepared statements reused across calls.
type PostgresStore struct {
	db *sql.DB

	stmtGetSession    *sql.Stmt
	stmtCreateSession *sql.Stmt
	stmtAppendMessage *sql.Stmt
	stmtGetHistory    *sql.Stmt
}

func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return newPostgresStore(db)
}

// NewPostgresStoreFromDB wraps an already-opened *sql.DB, so tests can pass
// in a go-sqlmock connection without dialing a real database.
func NewPostgresStoreFromDB(db *sql.DB) (*PostgresStore, error) {
	return newPostgresStore(db)
}

func newPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	var err error

	s.stmtGetSession, err = db.Prepare(`SELECT id, channel_id, channel_type, chat_id, created_at, updated_at FROM sessions WHERE id = $1`)
	if err != nil {
		return nil, fmt.Errorf("prepare get session: %w", err)
	}
	s.stmtCreateSession, err = db.Prepare(`INSERT INTO sessions (id, channel_id, channel_type, chat_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return nil, fmt.Errorf("prepare create session: %w", err)
	}
	s.stmtAppendMessage, err = db.Prepare(`INSERT INTO messages (session_id, role, content, tool_calls, tool_call_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return nil, fmt.Errorf("prepare append message: %w", err)
	}
	s.stmtGetHistory, err = db.Prepare(`SELECT role, content, tool_calls, tool_call_id, created_at FROM messages WHERE id IN (SELECT id FROM messages WHERE session_id = $1 ORDER BY id DESC LIMIT $2) ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("prepare get history: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, id string, channelID int64, channelType, chatID string) (models.Session, error) {
	row := s.stmtGetSession.QueryRowContext(ctx, id)
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
	if _, err := s.stmtCreateSession.ExecContext(ctx, sess.ID, sess.ChannelID, sess.ChannelType, sess.ChatID, sess.CreatedAt, sess.UpdatedAt); err != nil {
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) AppendMessages(ctx context.Context, sessionID string, messages []models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()
	stmt := tx.StmtContext(ctx, s.stmtAppendMessage)
	for _, m := range messages {
		toolCalls, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, sessionID, m.Role, m.Content, toolCalls, m.ToolCallID, m.CreatedAt); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) History(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.stmtGetHistory.QueryContext(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var toolCalls []byte
		if err := rows.Scan(&m.Role, &m.Content, &toolCalls, &m.ToolCallID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(toolCalls) > 0 {
			_ = json.Unmarshal(toolCalls, &m.ToolCalls)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.stmtGetSession.Close()
	s.stmtCreateSession.Close()
	s.stmtAppendMessage.Close()
	s.stmtGetHistory.Close()
	return s.db.Close()
}
