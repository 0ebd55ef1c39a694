package sweeper

import (
	"context"
	"log"
	"time"

	"dirchat/internal/models"
)

const (
	// DefaultInterval is the sweep cadence.
	DefaultInterval = 60 * time.Second
	// DefaultInactivityWindow is how long a chat must be silent before it is
	// considered abandoned.
	DefaultInactivityWindow = 5 * time.Minute
)

// Store is the slice of the chat store the sweeper needs.
type Store interface {
	InactiveChats(ctx context.Context, olderThan time.Time) ([]models.Chat, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	MarkChatSent(ctx context.Context, chatID int64) error
}

// Exporter forwards an abandoned conversation to the CRM.
type Exporter interface {
	Export(ctx context.Context, user *models.User, messages []models.ChatMessage) error
}

// Sweeper periodically exports chats that went silent without a closing turn.
// A chat whose export fails keeps its unsent flag, so the next tick picks it
// up again: delivery is at-least-once, not exactly-once.
type Sweeper struct {
	store    Store
	exporter Exporter
	window   time.Duration
	now      func() time.Time
}

// New builds a sweeper with the given inactivity window (0 means the default).
func New(store Store, exporter Exporter, window time.Duration) *Sweeper {
	if window <= 0 {
		window = DefaultInactivityWindow
	}
	return &Sweeper{
		store:    store,
		exporter: exporter,
		window:   window,
		now:      time.Now,
	}
}

// Start launches the sweep loop; it stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	go s.loop(ctx, interval)
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				log.Printf("sweep inactive chats error: %v", err)
			}
		}
	}
}

// sweep exports every eligible chat; one chat's failure is logged and skipped
// so the rest of the batch still goes out.
func (s *Sweeper) sweep(ctx context.Context) error {
	cutoff := s.now().Add(-s.window)
	chats, err := s.store.InactiveChats(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, chat := range chats {
		user, err := s.store.GetUser(ctx, chat.UserID)
		if err != nil {
			log.Printf("sweep chat %d: load user %d: %v", chat.ID, chat.UserID, err)
			continue
		}
		if err := s.exporter.Export(ctx, user, chat.Messages); err != nil {
			log.Printf("sweep chat %d: export: %v", chat.ID, err)
			continue
		}
		if err := s.store.MarkChatSent(ctx, chat.ID); err != nil {
			log.Printf("sweep chat %d: mark sent: %v", chat.ID, err)
		}
	}
	return nil
}
