package suppression

import (
	"context"
	"sync"
	"time"

	"github.com/totalaud/contact-safety/internal/domain"
)

// DefaultCacheTTL is how long a check result is served from cache.
const DefaultCacheTTL = 5 * time.Minute

// Cache holds derived SuppressionCheck values keyed by (email, user).
// Implementations must be safe for concurrent use and must not hold a lock
// across calls, so unrelated checks never serialise on each other.
//
// Get treats any backend failure as a miss. Set, Delete and Clear report
// failures, since a failed invalidation can leave a stale answer behind.
type Cache interface {
	Get(ctx context.Context, key string) (domain.SuppressionCheck, bool)
	Set(ctx context.Context, key string, check domain.SuppressionCheck) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// CacheKey builds the cache key for a normalised email and optional user.
// Callers without a user share the "global" slot.
func CacheKey(normalisedEmail, userID string) string {
	if userID == "" {
		userID = "global"
	}
	return normalisedEmail + "|" + userID
}

type memoryItem struct {
	check   domain.SuppressionCheck
	expires time.Time
}

// MemoryCache is a process-local TTL cache. Expired items are dropped lazily
// on read and in bulk by Sweep.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryCache creates a cache whose entries live for ttl. A non-positive
// ttl selects DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (domain.SuppressionCheck, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return domain.SuppressionCheck{}, false
	}
	if !c.now().Before(item.expires) {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && cur.expires.Equal(item.expires) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return domain.SuppressionCheck{}, false
	}
	return item.check, true
}

func (c *MemoryCache) Set(_ context.Context, key string, check domain.SuppressionCheck) error {
	c.mu.Lock()
	c.items[key] = memoryItem{check: check, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.items, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.items = make(map[string]memoryItem)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored items, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Sweep removes expired items and returns how many were dropped.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, item := range c.items {
		if !now.Before(item.expires) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *MemoryCache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// staleKeys tracks cache entries that could not be invalidated. A listed key
// is not read from the cache until a fresh result has been written over it.
// After a failed Clear nothing is read until a later Clear succeeds.
type staleKeys struct {
	mu   sync.Mutex
	keys map[string]bool
	all  bool
}

func (s *staleKeys) mark(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]bool)
	}
	for _, k := range keys {
		s.keys[k] = true
	}
}

func (s *staleKeys) markAll() {
	s.mu.Lock()
	s.all = true
	s.mu.Unlock()
}

// blocked reports whether key must bypass the cache. The second result is
// true while the whole cache is suspect.
func (s *staleKeys) blocked(key string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.all || s.keys[key], s.all
}

func (s *staleKeys) repaired(key string) {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
}

func (s *staleKeys) reset() {
	s.mu.Lock()
	s.keys = nil
	s.all = false
	s.mu.Unlock()
}
