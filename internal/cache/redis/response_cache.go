package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

const respPrefix = "resp:"

// ResponseCache implements domain.ResponseCache on Redis string keys with
// native TTLs. Sharing it across replicas means one upstream call serves
// every worker inside the TTL window.
type ResponseCache struct {
	rdb *redis.Client
}

// NewResponseCache creates a ResponseCache backed by the given Client.
func NewResponseCache(c *Client) *ResponseCache {
	return &ResponseCache{rdb: c.Underlying()}
}

// Get returns the cached body for key, reporting a miss for absent or
// expired entries.
func (rc *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := rc.rdb.Get(ctx, respPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get response %s: %w", key, err)
	}
	return body, true, nil
}

// Set stores the body under key for ttl. A non-positive ttl is ignored, the
// same as the in-memory implementation.
func (rc *ResponseCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := rc.rdb.Set(ctx, respPrefix+key, body, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set response %s: %w", key, err)
	}
	return nil
}

// Clear drops every cached response, walking the keyspace with SCAN so it
// never blocks the server the way KEYS would.
func (rc *ResponseCache) Clear(ctx context.Context) error {
	iter := rc.rdb.Scan(ctx, 0, respPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := rc.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis: clear responses: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: clear responses: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ResponseCache = (*ResponseCache)(nil)
