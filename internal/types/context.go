package types

import (
	"context"

	"github.com/samber/lo"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID   ContextKey = "ctx_request_id"
	CtxTenantID    ContextKey = "ctx_tenant_id"
	CtxUserID      ContextKey = "ctx_user_id"
	CtxRoles       ContextKey = "ctx_roles"        // membership roles of the acting user
	CtxSystemScope ContextKey = "ctx_system_scope" // caller name for unscoped access
)

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(CtxUserID).(string); ok {
		return userID
	}
	return ""
}

func GetTenantID(ctx context.Context) string {
	if tenantID, ok := ctx.Value(CtxTenantID).(string); ok {
		return tenantID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

// GetRoles returns the membership roles of the acting user
func GetRoles(ctx context.Context) []string {
	if roles, ok := ctx.Value(CtxRoles).([]string); ok {
		return roles
	}
	return []string{}
}

// HasAnyRole reports whether the acting user holds at least one of the given roles
func HasAnyRole(ctx context.Context, roles ...Role) bool {
	held := GetRoles(ctx)
	return lo.SomeBy(roles, func(r Role) bool {
		return lo.Contains(held, string(r))
	})
}

// SetTenantID sets the tenant ID in the context
func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, CtxTenantID, tenantID)
}

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

// SetRoles sets the membership roles in the context
func SetRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, CtxRoles, roles)
}

// WithSystemScope returns a context that runs without a tenant filter.
// The caller name is recorded so unscoped repository access can be audited.
func WithSystemScope(ctx context.Context, caller string) context.Context {
	ctx = context.WithValue(ctx, CtxTenantID, "")
	return context.WithValue(ctx, CtxSystemScope, caller)
}

// GetSystemScope returns the caller recorded by WithSystemScope
func GetSystemScope(ctx context.Context) string {
	if caller, ok := ctx.Value(CtxSystemScope).(string); ok {
		return caller
	}
	return ""
}

// TenantScope is the resolved tenant filter for a data access
type TenantScope struct {
	TenantID string
	// Caller is set for explicitly unscoped access
	Caller string
}

// Unscoped reports whether the access runs without a tenant filter
func (s TenantScope) Unscoped() bool {
	return s.TenantID == ""
}

// ResolveTenantScope returns the tenant filter for the context. An empty tenant
// means the access is unscoped; Caller is "unknown" when nobody asked for it
// through WithSystemScope.
func ResolveTenantScope(ctx context.Context) TenantScope {
	tenantID := GetTenantID(ctx)
	if tenantID != "" {
		return TenantScope{TenantID: tenantID}
	}
	caller := GetSystemScope(ctx)
	if caller == "" {
		caller = "unknown"
	}
	return TenantScope{Caller: caller}
}
