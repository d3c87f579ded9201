package auth

import (
	"testing"
	"time"

	"github.com/counterpos/counterpos/internal/config"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestProvider(secret string) Provider {
	return NewProvider(&config.Configuration{Auth: config.AuthConfig{Secret: secret}})
}

func TestValidateToken(t *testing.T) {
	token, err := GenerateToken(testSecret, "user_1", "tenant_a", time.Hour)
	require.NoError(t, err)

	claims, err := newTestProvider(testSecret).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user_1", claims.UserID)
	assert.Equal(t, "tenant_a", claims.TenantID)
}

func TestValidateTokenRejects(t *testing.T) {
	expired, err := GenerateToken(testSecret, "user_1", "tenant_a", -time.Minute)
	require.NoError(t, err)

	wrongKey, err := GenerateToken("other-secret", "user_1", "tenant_a", time.Hour)
	require.NoError(t, err)

	noTenant, err := GenerateToken(testSecret, "user_1", "", time.Hour)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user_1", TenantID: "tenant_a"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong key", wrongKey},
		{"missing tenant", noTenant},
		{"none algorithm", unsigned},
		{"garbage", "not-a-token"},
	}

	p := newTestProvider(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ValidateToken(tt.token)
			require.Error(t, err)
			assert.True(t, ierr.Is(err, ierr.ErrUnauthenticated))
		})
	}
}

func TestValidateTokenWithoutSecret(t *testing.T) {
	token, err := GenerateToken(testSecret, "user_1", "tenant_a", time.Hour)
	require.NoError(t, err)

	_, err = newTestProvider("").ValidateToken(token)
	assert.True(t, ierr.Is(err, ierr.ErrUnauthenticated))
}

func TestSubjectFallback(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID:         "tenant_a",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user_9"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	claims, err := newTestProvider(testSecret).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user_9", claims.UserID)
}
