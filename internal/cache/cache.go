package cache

import (
	"context"
	"strings"
	"time"
)

// Cache is a process-local key/value cache. Values are shared pointers;
// callers must not mutate what they get back.
type Cache interface {
	// Get returns the value and whether the key was present
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores value for expiration; 0 uses the cache default
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)

	Delete(ctx context.Context, key string)

	// DeleteByPrefix drops every key starting with prefix
	DeleteByPrefix(ctx context.Context, prefix string)

	Flush(ctx context.Context)
}

// keyVersion is bumped when a cached value's shape changes
const keyVersion = "v1"

const prefixMembership = "membership:" + keyVersion + ":"

// MembershipKey is the key of one user's membership in a tenant
func MembershipKey(tenantID, userID string) string {
	return TenantMembershipsPrefix(tenantID) + userID
}

// TenantMembershipsPrefix covers every cached membership of a tenant
func TenantMembershipsPrefix(tenantID string) string {
	return prefixMembership + strings.ReplaceAll(tenantID, ":", "_") + ":"
}
