package robots

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores raw robots.txt bodies per origin (scheme://host[:port]).
type Cache interface {
	Get(ctx context.Context, origin string) (body string, ok bool, err error)
	Set(ctx context.Context, origin, body string, ttl time.Duration) error
}

type memoryEntry struct {
	body    string
	expires time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, origin string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[origin]
	if !ok {
		return "", false, nil
	}
	if c.now().After(e.expires) {
		delete(c.entries, origin)
		return "", false, nil
	}
	return e.body, true, nil
}

func (c *MemoryCache) Set(_ context.Context, origin, body string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[origin] = memoryEntry{body: body, expires: c.now().Add(ttl)}
	return nil
}

// RedisCache shares robots bodies between service instances.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix + "robots:"}
}

func (c *RedisCache) Get(ctx context.Context, origin string) (string, bool, error) {
	body, err := c.client.Get(ctx, c.prefix+origin).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}

func (c *RedisCache) Set(ctx context.Context, origin, body string, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+origin, body, ttl).Err()
}
