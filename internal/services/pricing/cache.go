package pricing

import (
	"sync"
	"time"

	"liquidator/internal/domain/price"
)

type cacheEntry struct {
	quote     *price.Quote
	expiresAt time.Time
}

// Cache holds the last resolved quote per symbol until its TTL runs out
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type CacheOption func(*Cache)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached quote if it has not expired yet
func (c *Cache) Get(symbol string) (*price.Quote, bool) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.quote, true
}

// Set stores q, replacing any previous entry, with expiry now+TTL
func (c *Cache) Set(symbol string, q *price.Quote) {
	c.mu.Lock()
	c.entries[symbol] = cacheEntry{quote: q, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
