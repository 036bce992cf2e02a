package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is a Redis-backed entitlement cache shared across workers.
// Each cached resolution is tracked in a per-organization key set so
// invalidation can delete every entry for an org in one round trip.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and returns a cache with the given TTL
func NewRedisCache(url, password string, db int, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if db >= 0 {
		opts.DB = db
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// NewRedisCacheFromClient wraps an existing client, for tests
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func orgKeySet(orgID int64) string {
	return fmt.Sprintf("entitlement:org:%d:keys", orgID)
}

// Get returns the cached resolution for a key
func (c *RedisCache) Get(ctx context.Context, key CacheKey) (Resolution, bool) {
	data, err := c.client.Get(ctx, key.String()).Result()
	if err != nil {
		// Cache errors degrade to a miss; the resolver falls through to the
		// store.
		return Resolution{}, false
	}

	var res Resolution
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		c.client.Del(ctx, key.String())
		return Resolution{}, false
	}
	return res, true
}

// Set stores a resolution and registers its key in the org's key set
func (c *RedisCache) Set(ctx context.Context, key CacheKey, res Resolution) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}

	keyStr := key.String()
	pipe := c.client.Pipeline()
	pipe.Set(ctx, keyStr, data, c.ttl)
	pipe.SAdd(ctx, orgKeySet(key.OrgID), keyStr)
	// Key set lives slightly longer than the entries it tracks.
	pipe.Expire(ctx, orgKeySet(key.OrgID), c.ttl+time.Minute)
	_, _ = pipe.Exec(ctx)
}

// InvalidateOrg deletes every cached resolution for an organization. DEL is
// atomic per key, so no reader observes a half-invalidated entry.
func (c *RedisCache) InvalidateOrg(ctx context.Context, orgID int64) error {
	setKey := orgKeySet(orgID)
	keys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to list org cache keys: %w", err)
	}

	keys = append(keys, setKey)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate org cache: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Client exposes the underlying client, for health checks
func (c *RedisCache) Client() *redis.Client {
	return c.client
}
