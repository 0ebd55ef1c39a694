package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dirchat/internal/models"
)

// Store persists users and chats. A chat's transcript lives in a single
// JSON-encoded column, so appends are read-modify-write: under two truly
// concurrent appends to the same chat the last writer wins.
type Store struct {
	db     *sql.DB
	driver string
}

// New builds a store over an opened database. driver selects placeholder and
// insert-id handling ("sqlite3", "mysql" or "postgres").
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: strings.ToLower(driver)}
}

func (s *Store) postgres() bool {
	return s.driver == "postgres"
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres() {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.postgres() {
		var id int64
		err := s.db.QueryRowContext(ctx, s.rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateUser stores a visitor identity and returns the record.
func (s *Store) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return nil, errors.New("name and email are required")
	}
	now := time.Now().UTC()
	id, err := s.insert(ctx,
		`INSERT INTO users (name, email, created_at) VALUES (?, ?, ?)`,
		name, email, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &models.User{ID: id, Name: name, Email: email}, nil
}

// GetUser returns a visitor by id; sql.ErrNoRows when absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, name, email FROM users WHERE id = ?`), id,
	).Scan(&user.ID, &user.Name, &user.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// CreateChat opens a new session for the user with an empty transcript.
func (s *Store) CreateChat(ctx context.Context, userID int64) (*models.Chat, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	now := time.Now().UTC()
	id, err := s.insert(ctx,
		`INSERT INTO chats (user_id, messages, created_at, last_activity_at, sent_to_crm) VALUES (?, ?, ?, ?, ?)`,
		userID, "[]", now, now, false,
	)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &models.Chat{
		ID:             id,
		UserID:         userID,
		Messages:       []models.ChatMessage{},
		CreatedAt:      now,
		LastActivityAt: now,
	}, nil
}

// GetChat returns a chat with its decoded transcript; sql.ErrNoRows when absent.
func (s *Store) GetChat(ctx context.Context, id int64) (*models.Chat, error) {
	var (
		chat models.Chat
		raw  string
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, user_id, messages, created_at, last_activity_at, sent_to_crm FROM chats WHERE id = ?`), id,
	).Scan(&chat.ID, &chat.UserID, &raw, &chat.CreatedAt, &chat.LastActivityAt, &chat.SentToCRM)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if err := decodeMessages(raw, &chat.Messages); err != nil {
		return nil, fmt.Errorf("chat %d: %w", id, err)
	}
	return &chat, nil
}

// AppendMessage adds one turn to the transcript and refreshes last_activity_at.
func (s *Store) AppendMessage(ctx context.Context, chatID int64, msg models.ChatMessage) error {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	messages := append(chat.Messages, msg)
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE chats SET messages = ?, last_activity_at = ? WHERE id = ?`),
		string(raw), now, chatID,
	); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// InactiveChats lists chats not yet exported whose last activity predates the
// cutoff.
func (s *Store) InactiveChats(ctx context.Context, olderThan time.Time) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, user_id, messages, created_at, last_activity_at, sent_to_crm
			FROM chats WHERE sent_to_crm = ? AND last_activity_at < ?`),
		false, olderThan.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list inactive chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var (
			chat models.Chat
			raw  string
		)
		if err := rows.Scan(&chat.ID, &chat.UserID, &raw, &chat.CreatedAt, &chat.LastActivityAt, &chat.SentToCRM); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		if err := decodeMessages(raw, &chat.Messages); err != nil {
			return nil, fmt.Errorf("chat %d: %w", chat.ID, err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// MarkChatSent flips the export flag; it never reverts.
func (s *Store) MarkChatSent(ctx context.Context, chatID int64) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE chats SET sent_to_crm = ? WHERE id = ?`), true, chatID,
	)
	if err != nil {
		return fmt.Errorf("mark chat sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("chat rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func decodeMessages(raw string, dst *[]models.ChatMessage) error {
	if raw == "" {
		*dst = []models.ChatMessage{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode messages: %w", err)
	}
	if *dst == nil {
		*dst = []models.ChatMessage{}
	}
	return nil
}
