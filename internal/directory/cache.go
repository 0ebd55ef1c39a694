package directory

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"dirchat/internal/models"
)

// DefaultTTL is the directory snapshot validity window.
const DefaultTTL = 5 * time.Minute

const sharedKey = "dirchat:directory:snapshot"

// Fetcher retrieves the full directory from its external source.
type Fetcher interface {
	Fetch(ctx context.Context) ([]models.BusinessRecord, error)
}

// SharedStore is an optional cross-instance snapshot store (redis). Errors
// from it are logged and treated as misses; the source fetch is the fallback.
type SharedStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type snapshot struct {
	data      []models.BusinessRecord
	fetchedAt time.Time
}

// Cache serves the business directory, refetching once the snapshot ages past
// the validity window. The check-then-fetch sequence is deliberately not
// serialized: concurrent cold-cache callers may each fetch, and the last
// stored snapshot wins. The fetch is idempotent so that is tolerated.
type Cache struct {
	fetcher Fetcher
	shared  SharedStore
	ttl     time.Duration
	now     func() time.Time

	mu   sync.RWMutex
	snap *snapshot
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTL overrides the validity window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source, used by tests to age the snapshot.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSharedStore attaches a cross-instance snapshot store.
func WithSharedStore(s SharedStore) Option {
	return func(c *Cache) { c.shared = s }
}

// NewCache builds a cache over the given fetcher.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Businesses returns the cached directory when fresh, otherwise refetches.
// A failed fetch propagates as-is; no stale snapshot is served in its place.
func (c *Cache) Businesses(ctx context.Context) ([]models.BusinessRecord, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil && c.now().Sub(snap.fetchedAt) < c.ttl {
		return snap.data, nil
	}

	if data, ok := c.fromShared(ctx); ok {
		c.store(data)
		return data, nil
	}

	data, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.store(data)
	c.toShared(ctx, data)
	return data, nil
}

func (c *Cache) store(data []models.BusinessRecord) {
	c.mu.Lock()
	c.snap = &snapshot{data: data, fetchedAt: c.now()}
	c.mu.Unlock()
}

func (c *Cache) fromShared(ctx context.Context) ([]models.BusinessRecord, bool) {
	if c.shared == nil {
		return nil, false
	}
	raw, err := c.shared.GetBytes(ctx, sharedKey)
	if err != nil {
		return nil, false
	}
	var data []models.BusinessRecord
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("directory: decode shared snapshot: %v", err)
		return nil, false
	}
	return data, true
}

func (c *Cache) toShared(ctx context.Context, data []models.BusinessRecord) {
	if c.shared == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("directory: encode shared snapshot: %v", err)
		return
	}
	if err := c.shared.SetBytes(ctx, sharedKey, raw, c.ttl); err != nil {
		log.Printf("directory: store shared snapshot: %v", err)
	}
}
