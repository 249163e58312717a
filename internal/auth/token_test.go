package auth

import (
	"testing"
	"time"

	"salon_backend/internal/config"
	"salon_backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "salon-api", Audience: "salon-users", TTL: 60}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager(testJWTConfig())

	token, err := m.GenerateToken("user-1", string(models.UserRoleSalonOwner), 7)
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "salon_owner", claims.Role)
	assert.Equal(t, int64(7), claims.SalonID)
}

func TestTokenManager_Expired(t *testing.T) {
	m := NewTokenManager(testJWTConfig())
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := m.GenerateToken("user-1", "admin", 0)
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenManager_WrongAudienceOrSecret(t *testing.T) {
	token, err := NewTokenManager(testJWTConfig()).GenerateToken("user-1", "admin", 0)
	require.NoError(t, err)

	other := testJWTConfig()
	other.Audience = "someone-else"
	_, err = NewTokenManager(other).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other = testJWTConfig()
	other.Secret = "another-secret"
	_, err = NewTokenManager(other).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_EmptySecret(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Secret = ""
	_, err := NewTokenManager(cfg).GenerateToken("user-1", "admin", 0)
	assert.ErrorIs(t, err, ErrEmptyJWTSecret)
}

func TestPermissions(t *testing.T) {
	assert.True(t, HasPermission(models.UserRoleAdmin, PermPaymentsAdmin))
	assert.False(t, HasPermission(models.UserRoleSalonOwner, PermPaymentsAdmin))

	owner := &Claims{UserID: "u", Role: "salon_owner", SalonID: 7}
	assert.True(t, CanAccessSalon(owner, 7))
	assert.False(t, CanAccessSalon(owner, 8))
	assert.True(t, CanAccessSalon(&Claims{UserID: "a", Role: "admin"}, 8))
	assert.False(t, CanAccessSalon(nil, 7))
}
