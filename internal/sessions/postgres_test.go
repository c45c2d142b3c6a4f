package sessions

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/coredispatch/agentcore/pkg/models"
)

func TestPostgresStoreGetOrCreateCreatesOnMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectPrepare("SELECT id, channel_id, channel_type, chat_id, created_at, updated_at FROM sessions")
	mock.ExpectPrepare("INSERT INTO sessions")
	mock.ExpectPrepare("INSERT INTO messages")
	mock.ExpectPrepare("SELECT role, content, tool_calls, tool_call_id, created_at FROM messages")

	store, err := NewPostgresStoreFromDB(db)
	if err != nil {
		t.Fatalf("NewPostgresStoreFromDB: %v", err)
	}
	defer store.Close()

	mock.ExpectQuery("SELECT id, channel_id, channel_type, chat_id, created_at, updated_at FROM sessions").
		WithArgs("sess-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	sess, err := store.GetOrCreate(context.Background(), "sess-1", 7, "slack", "chat-9")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.ID != "sess-1" || sess.ChannelID != 7 {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMemoryStoreAppendAndHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.GetOrCreate(ctx, "s1", 1, "slack", "c1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	msgs := []models.Message{{Role: models.RoleUser, Content: "hi", CreatedAt: time.Now()}}
	if err := store.AppendMessages(ctx, "s1", msgs); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}
	history, err := store.History(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Content != "hi" {
		t.Fatalf("unexpected history: %+v", history)
	}
}
