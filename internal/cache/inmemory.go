package cache

import (
	"context"
	"strings"
	"time"

	"github.com/counterpos/counterpos/internal/config"
	goCache "github.com/patrickmn/go-cache"
)

// DefaultExpiration is the default expiration time for cache entries
const DefaultExpiration = 5 * time.Minute

// DefaultCleanupInterval is how often expired items are removed from the cache
const DefaultCleanupInterval = 10 * time.Minute

// InMemoryCache implements the Cache interface using github.com/patrickmn/go-cache.
// Entries are per process; other replicas see changes after expiry.
type InMemoryCache struct {
	cache   *goCache.Cache
	enabled bool
}

// NewInMemoryCache creates a cache, a no-op one when caching is disabled
func NewInMemoryCache(cfg *config.Configuration) Cache {
	expiration := DefaultExpiration
	if cfg.Cache.MembershipTTL > 0 {
		expiration = cfg.Cache.MembershipTTL
	}
	return &InMemoryCache{
		cache:   goCache.New(expiration, DefaultCleanupInterval),
		enabled: cfg.Cache.Enabled,
	}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if !c.enabled {
		return nil, false
	}
	span := startSpan(ctx, "inmemory", "get", key)
	value, found := c.cache.Get(key)
	finishSpan(span, &found)
	return value, found
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) {
	if !c.enabled {
		return
	}
	if expiration == 0 {
		expiration = goCache.DefaultExpiration
	}
	span := startSpan(ctx, "inmemory", "set", key)
	c.cache.Set(key, value, expiration)
	finishSpan(span, nil)
}

func (c *InMemoryCache) Delete(_ context.Context, key string) {
	if !c.enabled {
		return
	}
	c.cache.Delete(key)
}

func (c *InMemoryCache) DeleteByPrefix(ctx context.Context, prefix string) {
	if !c.enabled {
		return
	}
	span := startSpan(ctx, "inmemory", "delete_prefix", prefix)
	defer finishSpan(span, nil)
	for k := range c.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Delete(k)
		}
	}
}

func (c *InMemoryCache) Flush(_ context.Context) {
	if !c.enabled {
		return
	}
	c.cache.Flush()
}
