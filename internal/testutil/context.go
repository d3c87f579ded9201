package testutil

import (
	"context"

	"github.com/counterpos/counterpos/internal/types"
)

const (
	TestTenantID      = "tenant_test_primary"
	OtherTestTenantID = "tenant_test_other"
	TestUserID        = "user_test"
)

// SetupContext returns a request context for the primary test tenant acting as owner
func SetupContext() context.Context {
	return TenantContext(context.Background(), TestTenantID, TestUserID, types.RoleOwner)
}

// TenantContext returns ctx acting for tenantID as userID with roles
func TenantContext(ctx context.Context, tenantID, userID string, roles ...types.Role) context.Context {
	ctx = types.SetTenantID(ctx, tenantID)
	ctx = types.SetUserID(ctx, userID)
	ctx = types.SetRoles(ctx, rolesToStrings(roles))
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}

// WithRoles replaces the roles of the acting user
func WithRoles(ctx context.Context, roles ...types.Role) context.Context {
	return types.SetRoles(ctx, rolesToStrings(roles))
}

func rolesToStrings(roles []types.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}
