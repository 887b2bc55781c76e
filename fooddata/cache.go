package fooddata

import (
	"sync"
	"time"

	"mealwise"
)

// DefaultTTL is how long a resolved estimate stays fresh.
const DefaultTTL = 7 * 24 * time.Hour

type cacheEntry struct {
	estimate  mealwise.NutritionEstimate
	fetchedAt time.Time
}

// Cache is a TTL cache of nutrition estimates shared across requests.
// Writes for the same key are idempotent; the last write wins.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type CacheOption func(*Cache)

// WithClock replaces time.Now, mainly for expiry tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
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

// Get returns a fresh entry for key. Expired entries count as misses.
func (c *Cache) Get(key string) (mealwise.NutritionEstimate, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return mealwise.NutritionEstimate{}, false
	}
	return e.estimate, true
}

func (c *Cache) Put(key string, est mealwise.NutritionEstimate) {
	est.CacheHit = false
	c.mu.Lock()
	c.entries[key] = cacheEntry{estimate: est, fetchedAt: c.now()}
	c.mu.Unlock()
}

// Len is the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
