package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"dirchat/internal/models"
	"dirchat/internal/service/chatstore"
	"dirchat/internal/service/matcher"
)

// OpeningPrompt is the fixed greeting appended when a chat starts.
const OpeningPrompt = "What kind of business/organization are you looking for?"

// Directory serves the current business directory snapshot.
type Directory interface {
	Businesses(ctx context.Context) ([]models.BusinessRecord, error)
}

// Matcher produces a reply plus candidate businesses for one user turn.
type Matcher interface {
	FindMatches(ctx context.Context, query string, businesses []models.BusinessRecord, prior []models.ChatMessage) (*matcher.Result, error)
}

// Exporter forwards a finished conversation to the CRM.
type Exporter interface {
	Export(ctx context.Context, user *models.User, messages []models.ChatMessage) error
}

// Service orchestrates a conversation turn: record the inbound message, match
// against the directory, record the reply, and hand the chat to the CRM when
// the model flags closure.
type Service struct {
	store     *chatstore.Store
	directory Directory
	matcher   Matcher
	exporter  Exporter
	now       func() time.Time
}

// NewService wires the orchestrator.
func NewService(store *chatstore.Store, dir Directory, m Matcher, exp Exporter) *Service {
	return &Service{
		store:     store,
		directory: dir,
		matcher:   m,
		exporter:  exp,
		now:       time.Now,
	}
}

// Reply is the outcome of one posted message. Business is set only when
// exactly one candidate matched and the turn is not a closing turn, so the
// widget never re-renders contact details on a farewell.
type Reply struct {
	Message         string                `json:"message"`
	Business        *models.BusinessMatch `json:"businesses"`
	MultipleMatches bool                  `json:"multipleMatches"`
	MatchCount      int                   `json:"matchCount"`
	IsClosing       bool                  `json:"isClosing"`
}

// StartChat validates the visitor identity, creates the user and chat, and
// appends the opening assistant turn.
func (s *Service) StartChat(ctx context.Context, name, email string) (*models.Chat, *models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if email == "" {
		return nil, nil, &ValidationError{Field: "email", Reason: "must not be empty"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, &ValidationError{Field: "email", Reason: "must be a valid address"}
	}

	user, err := s.store.CreateUser(ctx, name, email)
	if err != nil {
		return nil, nil, fmt.Errorf("start chat: %w", err)
	}
	chat, err := s.store.CreateChat(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("start chat: %w", err)
	}
	greeting := models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   OpeningPrompt,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.store.AppendMessage(ctx, chat.ID, greeting); err != nil {
		return nil, nil, fmt.Errorf("start chat: %w", err)
	}
	chat.Messages = append(chat.Messages, greeting)
	return chat, user, nil
}

// Chat returns the full persisted chat record.
func (s *Service) Chat(ctx context.Context, chatID int64) (*models.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return chat, nil
}

// PostMessage runs one conversation turn. When the matcher flags closure and
// the chat has not been exported yet, the CRM export runs synchronously
// before returning; its latency and failures sit on the response path.
func (s *Service) PostMessage(ctx context.Context, chatID int64, text string) (*Reply, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	user, err := s.store.GetUser(ctx, chat.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := s.store.AppendMessage(ctx, chatID, models.ChatMessage{
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: s.now().UnixMilli(),
	}); err != nil {
		return nil, err
	}

	businesses, err := s.directory.Businesses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}

	// Prior turns deliberately exclude the message just appended; the query
	// travels separately in the matcher payload.
	result, err := s.matcher.FindMatches(ctx, text, businesses, chat.Messages)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendMessage(ctx, chatID, models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   result.Message,
		Timestamp: s.now().UnixMilli(),
	}); err != nil {
		return nil, err
	}

	if result.IsClosing {
		if err := s.exportOnce(ctx, chatID, user); err != nil {
			return nil, err
		}
	}

	reply := &Reply{
		Message:         result.Message,
		MultipleMatches: len(result.Matches) > 1,
		MatchCount:      len(result.Matches),
		IsClosing:       result.IsClosing,
	}
	if len(result.Matches) == 1 && !result.IsClosing {
		reply.Business = &result.Matches[0]
	}
	return reply, nil
}

// exportOnce forwards the chat to the CRM unless a previous closing turn
// already did. The flag flips only after a successful delivery.
func (s *Service) exportOnce(ctx context.Context, chatID int64, user *models.User) error {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.SentToCRM {
		return nil
	}
	if err := s.exporter.Export(ctx, user, chat.Messages); err != nil {
		return fmt.Errorf("export chat %d: %w", chatID, err)
	}
	return s.store.MarkChatSent(ctx, chatID)
}
