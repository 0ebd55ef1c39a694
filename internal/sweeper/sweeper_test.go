package sweeper

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"dirchat/internal/config"
	"dirchat/internal/models"
	"dirchat/internal/service/chatstore"
	"dirchat/internal/storage"
)

type recordingExporter struct {
	err     error
	failFor map[int64]error
	exports []int64
	users   []*models.User
}

func (e *recordingExporter) Export(ctx context.Context, user *models.User, messages []models.ChatMessage) error {
	e.exports = append(e.exports, user.ID)
	e.users = append(e.users, user)
	if e.failFor != nil {
		if err, ok := e.failFor[user.ID]; ok {
			return err
		}
	}
	return e.err
}

func newTestStore(t *testing.T) (*chatstore.Store, *sql.DB) {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return chatstore.New(db, "sqlite3"), db
}

func seedChat(t *testing.T, store *chatstore.Store, db *sql.DB, age time.Duration, sent bool) (*models.User, *models.Chat) {
	t.Helper()
	ctx := context.Background()
	user, err := store.CreateUser(ctx, "Jane Doe", "jane@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	chat, err := store.CreateChat(ctx, user.ID)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if err := store.AppendMessage(ctx, chat.ID, models.ChatMessage{
		Role: models.RoleUser, Content: "hello", Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	if age > 0 {
		stale := time.Now().UTC().Add(-age)
		if _, err := db.Exec(`UPDATE chats SET last_activity_at = ? WHERE id = ?`, stale, chat.ID); err != nil {
			t.Fatalf("age chat: %v", err)
		}
	}
	if sent {
		if err := store.MarkChatSent(ctx, chat.ID); err != nil {
			t.Fatalf("mark sent: %v", err)
		}
	}
	return user, chat
}

func TestSweepExportsAbandonedChats(t *testing.T) {
	store, db := newTestStore(t)
	exp := &recordingExporter{}
	sw := New(store, exp, 5*time.Minute)
	ctx := context.Background()

	_, stale := seedChat(t, store, db, 10*time.Minute, false)
	seedChat(t, store, db, 0, false)             // fresh, inside window
	seedChat(t, store, db, 10*time.Minute, true) // already exported

	if err := sw.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(exp.exports) != 1 {
		t.Fatalf("expected exactly one export, got %d", len(exp.exports))
	}

	got, err := store.GetChat(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if !got.SentToCRM {
		t.Fatalf("swept chat should be marked sent")
	}
}

func TestSweepSkipsFailedExportAndRetriesNextTick(t *testing.T) {
	store, db := newTestStore(t)
	exp := &recordingExporter{err: errors.New("webhook down")}
	sw := New(store, exp, 5*time.Minute)
	ctx := context.Background()

	_, chat := seedChat(t, store, db, 10*time.Minute, false)

	if err := sw.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, _ := store.GetChat(ctx, chat.ID)
	if got.SentToCRM {
		t.Fatalf("failed export must not set the sent flag")
	}

	// next tick retries because the flag is still false
	exp.err = nil
	if err := sw.sweep(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(exp.exports) != 2 {
		t.Fatalf("expected a retry on the next tick, got %d exports", len(exp.exports))
	}
	got, _ = store.GetChat(ctx, chat.ID)
	if !got.SentToCRM {
		t.Fatalf("chat should be marked sent after successful retry")
	}
}

func TestSweepOneFailureDoesNotAbortBatch(t *testing.T) {
	store, db := newTestStore(t)
	failing, _ := seedChat(t, store, db, 10*time.Minute, false)
	healthy, healthyChat := seedChat(t, store, db, 10*time.Minute, false)

	exp := &recordingExporter{failFor: map[int64]error{failing.ID: errors.New("boom")}}
	sw := New(store, exp, 5*time.Minute)
	ctx := context.Background()

	if err := sw.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(exp.exports) != 2 {
		t.Fatalf("both chats should be attempted, got %d", len(exp.exports))
	}
	got, _ := store.GetChat(ctx, healthyChat.ID)
	if !got.SentToCRM {
		t.Fatalf("healthy chat should still be exported")
	}
	_ = healthy
}

func TestStartStopsOnContextCancel(t *testing.T) {
	store, _ := newTestStore(t)
	exp := &recordingExporter{}
	sw := New(store, exp, 5*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	sw.Start(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(30 * time.Millisecond)

	// nothing to export, so the loop just ticks; reaching here without a
	// leaked goroutine panic is the assertion
	if len(exp.exports) != 0 {
		t.Fatalf("no chats were eligible, got %d exports", len(exp.exports))
	}
}
