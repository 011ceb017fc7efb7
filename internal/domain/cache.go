package domain

import (
	"context"
	"time"
)

// ResponseCache is the TTL cache consulted by the resilient fetch client
// before any network call. Keys are caller-supplied (symbol plus query kind).
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
	// Clear drops every entry. Used for test isolation.
	Clear(ctx context.Context) error
}

// CIDCache remembers the content ID of uploaded evidence, keyed by market and
// content digest, making evidence uploads idempotent per market.
type CIDCache interface {
	GetCID(ctx context.Context, marketID, digest string) (string, error)
	SetCID(ctx context.Context, marketID, digest, contentID string) error
}

// LockManager provides locking around a resolution attempt so two processes
// cannot race the same market to the chain.
type LockManager interface {
	// Acquire returns ErrLockHeld when another holder owns the key. The
	// returned unlock func is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
