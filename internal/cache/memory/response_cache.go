// Package memory implements the response cache as an in-process TTL map.
// Each adapter owns one cache instance, so access is effectively
// single-writer and a plain mutex suffices.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

type entry struct {
	body      []byte
	expiresAt time.Time
}

// ResponseCache is an in-memory TTL cache implementing domain.ResponseCache.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]entry

	// now is swappable in tests to cross TTL boundaries without sleeping.
	now func() time.Time
}

// NewResponseCache creates an empty cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached body when the entry exists and has not expired.
// Expired entries are dropped on access.
func (c *ResponseCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.body, true, nil
}

// Set stores a body with the given TTL. Non-positive TTLs store nothing.
func (c *ResponseCache) Set(_ context.Context, key string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{body: body, expiresAt: c.now().Add(ttl)}
	return nil
}

// Clear drops every entry.
func (c *ResponseCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	return nil
}

// SetClock overrides the cache's clock. Tests use it to step across TTL
// boundaries deterministically.
func (c *ResponseCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Compile-time interface check.
var _ domain.ResponseCache = (*ResponseCache)(nil)
