package middleware

import (
	"context"
	"strings"

	"github.com/counterpos/counterpos/internal/auth"
	"github.com/counterpos/counterpos/internal/cache"
	"github.com/counterpos/counterpos/internal/config"
	"github.com/counterpos/counterpos/internal/domain/tenant"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware resolves the acting user and tenant of a request from its
// bearer token and the user's membership in that tenant
type AuthMiddleware struct {
	cfg      *config.Configuration
	provider auth.Provider
	tenants  tenant.Repository
	cache    cache.Cache
	logger   *logger.Logger
}

func NewAuthMiddleware(cfg *config.Configuration, tenants tenant.Repository, cache cache.Cache, logger *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		cfg:      cfg,
		provider: auth.NewProvider(cfg),
		tenants:  tenants,
		cache:    cache,
		logger:   logger,
	}
}

// Authenticate sets tenant, user and roles on the request context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(types.HeaderAuthorization)
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			c.Error(ierr.NewError("missing bearer token").
				WithHint("Authorization header with a bearer token is required").
				Mark(ierr.ErrUnauthenticated))
			c.Abort()
			return
		}

		claims, err := m.provider.ValidateToken(tokenString)
		if err != nil {
			m.logger.WithContext(c.Request.Context()).Debugw("invalid token", "error", err)
			c.Error(err)
			c.Abort()
			return
		}

		membership, err := m.membership(c.Request.Context(), claims.TenantID, claims.UserID)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		ctx := types.SetTenantID(c.Request.Context(), claims.TenantID)
		ctx = types.SetUserID(ctx, claims.UserID)
		ctx = types.SetRoles(ctx, membership.Roles)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// membership loads the user's active membership, cached for a short TTL
func (m *AuthMiddleware) membership(ctx context.Context, tenantID, userID string) (*tenant.Membership, error) {
	key := cache.MembershipKey(tenantID, userID)
	if m.cfg.Cache.Enabled && m.cache != nil {
		if cached, found := m.cache.Get(ctx, key); found {
			if membership, ok := cached.(*tenant.Membership); ok {
				return membership, nil
			}
		}
	}

	membership, err := m.tenants.GetMembership(ctx, tenantID, userID)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if err != nil || !membership.IsActive() {
		return nil, ierr.NewErrorf("user %s is not an active member of tenant %s", userID, tenantID).
			WithHint("You do not have access to this business").
			Mark(ierr.ErrPermissionDenied)
	}

	if m.cfg.Cache.Enabled && m.cache != nil {
		m.cache.Set(ctx, key, membership, m.cfg.Cache.MembershipTTL)
	}
	return membership, nil
}
