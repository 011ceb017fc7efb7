package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// cidTTL bounds how long an upload dedup entry lives. A re-upload after
// expiry is harmless: content addressing makes it overwrite-identical.
const cidTTL = 30 * 24 * time.Hour

// CIDCache implements domain.CIDCache on Redis, keyed by market and content
// digest, so evidence uploads stay idempotent across process restarts.
type CIDCache struct {
	rdb *redis.Client
}

// NewCIDCache creates a CIDCache backed by the given Client.
func NewCIDCache(c *Client) *CIDCache {
	return &CIDCache{rdb: c.Underlying()}
}

func cidKey(marketID, digest string) string {
	return "cid:" + marketID + ":" + digest
}

// GetCID returns the stored content ID or domain.ErrNotFound.
func (cc *CIDCache) GetCID(ctx context.Context, marketID, digest string) (string, error) {
	cid, err := cc.rdb.Get(ctx, cidKey(marketID, digest)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis: get cid %s: %w", marketID, err)
	}
	return cid, nil
}

// SetCID records the content ID for a market's evidence digest.
func (cc *CIDCache) SetCID(ctx context.Context, marketID, digest, contentID string) error {
	if err := cc.rdb.Set(ctx, cidKey(marketID, digest), contentID, cidTTL).Err(); err != nil {
		return fmt.Errorf("redis: set cid %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.CIDCache = (*CIDCache)(nil)
