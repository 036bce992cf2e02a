package entitlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is an in-process entitlement cache backed by an expirable LRU.
// Suitable for single-instance deployments; multi-instance deployments use
// RedisCache so invalidation reaches every worker.
type MemoryCache struct {
	cache *lru.LRU[string, Resolution]
}

// NewMemoryCache creates a memory cache holding up to maxSize resolutions
// for at most ttl each.
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 65536
	}
	return &MemoryCache{
		cache: lru.NewLRU[string, Resolution](maxSize, nil, ttl),
	}
}

// Get returns the cached resolution for a key
func (c *MemoryCache) Get(ctx context.Context, key CacheKey) (Resolution, bool) {
	return c.cache.Get(key.String())
}

// Set stores a resolution
func (c *MemoryCache) Set(ctx context.Context, key CacheKey, res Resolution) {
	c.cache.Add(key.String(), res)
}

// InvalidateOrg removes every cached resolution for an organization. The LRU
// serializes Remove per key, so each removal is atomic and immediately
// visible to subsequent Gets.
func (c *MemoryCache) InvalidateOrg(ctx context.Context, orgID int64) error {
	prefix := fmt.Sprintf("entitlement:%d:", orgID)
	for _, k := range c.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Remove(k)
		}
	}
	return nil
}

// Close implements Cache
func (c *MemoryCache) Close() error {
	return nil
}

// NopCache disables caching; every resolution goes to the store. Used in
// tests and as a fallback when no cache is configured.
type NopCache struct{}

func (NopCache) Get(ctx context.Context, key CacheKey) (Resolution, bool) { return Resolution{}, false }
func (NopCache) Set(ctx context.Context, key CacheKey, res Resolution)    {}
func (NopCache) InvalidateOrg(ctx context.Context, orgID int64) error     { return nil }
func (NopCache) Close() error                                             { return nil }
