package postgres

import (
	"context"

	"github.com/counterpos/counterpos/internal/cache"
	"github.com/counterpos/counterpos/internal/domain/tenant"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/postgres"
	"github.com/lib/pq"
)

type tenantRepository struct {
	client postgres.IClient
	log    *logger.Logger
	cache  cache.Cache
}

func NewTenantRepository(client postgres.IClient, log *logger.Logger, cache cache.Cache) tenant.Repository {
	return &tenantRepository{client: client, log: log, cache: cache}
}

func (r *tenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	span := StartRepositorySpan(ctx, "tenant", "create", map[string]interface{}{
		"tenant_id": t.ID,
	})
	defer FinishSpan(span)

	query := `
	INSERT INTO tenants (
		id, name, timezone, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8
	)`

	_, err := r.client.Querier(ctx).ExecContext(ctx, query,
		t.ID,
		t.Name,
		t.Timezone,
		t.Status,
		t.CreatedAt,
		t.UpdatedAt,
		t.CreatedBy,
		t.UpdatedBy,
	)
	if err != nil {
		SetSpanError(span, err)
		return postgres.MapError(err, "create tenant")
	}
	return nil
}

func (r *tenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	span := StartRepositorySpan(ctx, "tenant", "get", map[string]interface{}{
		"tenant_id": id,
	})
	defer FinishSpan(span)

	query := `
	SELECT id, name, timezone, status, created_at, updated_at, created_by, updated_by
	FROM tenants
	WHERE id = $1`

	var t tenant.Tenant
	if err := r.client.Querier(ctx).GetContext(ctx, &t, query, id); err != nil {
		SetSpanError(span, err)
		return nil, postgres.MapError(err, "get tenant")
	}
	return &t, nil
}

func (r *tenantRepository) UpsertMembership(ctx context.Context, m *tenant.Membership) error {
	span := StartRepositorySpan(ctx, "tenant", "upsert_membership", map[string]interface{}{
		"tenant_id": m.TenantID,
		"user_id":   m.UserID,
	})
	defer FinishSpan(span)

	query := `
	INSERT INTO tenant_memberships (tenant_id, user_id, roles, status)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (tenant_id, user_id)
	DO UPDATE SET roles = EXCLUDED.roles, status = EXCLUDED.status, updated_at = NOW()`

	_, err := r.client.Querier(ctx).ExecContext(ctx, query,
		m.TenantID,
		m.UserID,
		pq.StringArray(m.Roles),
		m.Status,
	)
	if err != nil {
		SetSpanError(span, err)
		return postgres.MapError(err, "save membership")
	}
	r.cache.Delete(ctx, cache.MembershipKey(m.TenantID, m.UserID))
	return nil
}

func (r *tenantRepository) GetMembership(ctx context.Context, tenantID, userID string) (*tenant.Membership, error) {
	key := cache.MembershipKey(tenantID, userID)
	if cached, ok := r.cache.Get(ctx, key); ok {
		if m, ok := cached.(*tenant.Membership); ok {
			return m, nil
		}
	}

	span := StartRepositorySpan(ctx, "tenant", "get_membership", map[string]interface{}{
		"tenant_id": tenantID,
		"user_id":   userID,
	})
	defer FinishSpan(span)

	query := `
	SELECT tenant_id, user_id, roles, status
	FROM tenant_memberships
	WHERE tenant_id = $1 AND user_id = $2`

	var (
		m     tenant.Membership
		roles pq.StringArray
	)
	err := r.client.Querier(ctx).QueryRowxContext(ctx, query, tenantID, userID).
		Scan(&m.TenantID, &m.UserID, &roles, &m.Status)
	if err != nil {
		SetSpanError(span, err)
		return nil, postgres.MapError(err, "get membership")
	}
	m.Roles = []string(roles)
	r.cache.Set(ctx, key, &m, 0)
	return &m, nil
}
