package cache

import (
	"context"
	"testing"
	"time"

	"github.com/counterpos/counterpos/internal/config"
	"github.com/stretchr/testify/assert"
)

func newTestCache(enabled bool) Cache {
	return NewInMemoryCache(&config.Configuration{
		Cache: config.CacheConfig{Enabled: enabled, MembershipTTL: time.Minute},
	})
}

func TestInMemoryCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(true)

	key := MembershipKey("tenant_a", "user_1")
	assert.Equal(t, "membership:v1:tenant_a:user_1", key)

	_, found := c.Get(ctx, key)
	assert.False(t, found)

	c.Set(ctx, key, []string{"owner"}, 0)
	v, found := c.Get(ctx, key)
	assert.True(t, found)
	assert.Equal(t, []string{"owner"}, v)

	c.Delete(ctx, key)
	_, found = c.Get(ctx, key)
	assert.False(t, found)
}

func TestInMemoryCache_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(true)

	c.Set(ctx, MembershipKey("a", "1"), 1, 0)
	c.Set(ctx, MembershipKey("a", "2"), 2, 0)
	c.Set(ctx, MembershipKey("ab", "1"), 3, 0)

	c.DeleteByPrefix(ctx, TenantMembershipsPrefix("a"))

	_, found := c.Get(ctx, MembershipKey("a", "1"))
	assert.False(t, found)
	_, found = c.Get(ctx, MembershipKey("a", "2"))
	assert.False(t, found)
	_, found = c.Get(ctx, MembershipKey("ab", "1"))
	assert.True(t, found)
}

func TestInMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(true)

	c.Set(ctx, "short", "v", 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, found := c.Get(ctx, "short")
		return !found
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryCache_Disabled(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(false)

	c.Set(ctx, "k", "v", 0)
	_, found := c.Get(ctx, "k")
	assert.False(t, found)
}
