package memory

import (
	"context"
	"sync"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// CIDCache is an in-process map from (market, digest) to stored content ID.
type CIDCache struct {
	mu   sync.RWMutex
	cids map[string]string
}

// NewCIDCache creates an empty CID cache.
func NewCIDCache() *CIDCache {
	return &CIDCache{cids: make(map[string]string)}
}

func cidKey(marketID, digest string) string {
	return marketID + ":" + digest
}

// GetCID returns the content ID for the given market and digest, or
// domain.ErrNotFound.
func (c *CIDCache) GetCID(_ context.Context, marketID, digest string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cid, ok := c.cids[cidKey(marketID, digest)]
	if !ok {
		return "", domain.ErrNotFound
	}
	return cid, nil
}

// SetCID records the content ID for the given market and digest.
func (c *CIDCache) SetCID(_ context.Context, marketID, digest, contentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cids[cidKey(marketID, digest)] = contentID
	return nil
}

// Compile-time interface check.
var _ domain.CIDCache = (*CIDCache)(nil)
