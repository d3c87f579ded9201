package auth

import (
	"time"

	"github.com/counterpos/counterpos/internal/config"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/golang-jwt/jwt/v4"
)

// Claims carried by access tokens. Tokens are issued elsewhere; this service
// only validates them.
type Claims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Provider validates bearer tokens
type Provider interface {
	ValidateToken(token string) (*Claims, error)
}

type jwtProvider struct {
	secret []byte
}

// NewProvider returns an HMAC token validator using the configured secret
func NewProvider(cfg *config.Configuration) Provider {
	return &jwtProvider{secret: []byte(cfg.Auth.Secret)}
}

func (p *jwtProvider) ValidateToken(tokenString string) (*Claims, error) {
	if len(p.secret) == 0 {
		return nil, ierr.NewError("auth secret is not configured").
			WithHint("Authentication is not configured").
			Mark(ierr.ErrUnauthenticated)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ierr.NewErrorf("unexpected signing method: %v", token.Header["alg"]).
				Mark(ierr.ErrUnauthenticated)
		}
		return p.secret, nil
	})
	if err == nil && !token.Valid {
		err = jwt.ErrTokenUnverifiable
	}
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid or expired token").
			Mark(ierr.ErrUnauthenticated)
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, ierr.NewError("token missing user_id or tenant_id").
			WithHint("Invalid token").
			Mark(ierr.ErrUnauthenticated)
	}

	return claims, nil
}

// GenerateToken signs a token for the user and tenant. Used by tooling and tests.
func GenerateToken(secret, userID, tenantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
