// Package cache keeps compiled corpora per language for a fixed TTL.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a compiled corpus is served before recompiling.
const DefaultTTL = 5 * time.Minute

// ComputeFunc produces the value for a key on a miss.
type ComputeFunc func(ctx context.Context) (string, error)

type entry struct {
	text string
	at   time.Time
}

// Cache is safe for concurrent use. Concurrent misses on one key share a
// single computation.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	gen     uint64

	flight singleflight.Group
}

// New creates a Cache. ttl <= 0 uses DefaultTTL; nil now uses time.Now.
func New(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now, entries: make(map[string]entry)}
}

// Get returns a fresh entry for key.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.at) >= c.ttl {
		return "", false
	}
	return e.text, true
}

// GetOrCompute returns the cached value for key or computes and stores it.
// Errors are returned and not cached. A value computed across an
// Invalidate is returned to its callers but not stored.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (string, error) {
	if text, ok := c.Get(key); ok {
		return text, nil
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	v, err, _ := c.flight.Do(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		text, err := compute(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.entries[key] = entry{text: text, at: c.now()}
		}
		c.mu.Unlock()
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.gen++
	c.mu.Unlock()
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
