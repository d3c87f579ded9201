package tenant

import "context"

// Repository defines persistence for tenants and their memberships.
// Tenants are the isolation root, so these lookups are never tenant-filtered.
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	UpsertMembership(ctx context.Context, membership *Membership) error
	GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error)
}
