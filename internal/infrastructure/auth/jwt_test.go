package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot/backend/internal/infrastructure/config"
)

func newTestJWTService(expiration time.Duration) *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars!!",
		AccessTokenExpiration: expiration,
		Issuer:                "postpilot",
	})
}

func TestJWTService_GenerateToken(t *testing.T) {
	service := newTestJWTService(time.Hour)
	userID := uuid.New()

	token, expiresAt, err := service.GenerateToken(userID, "user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "postpilot", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	got, err := claims.GetUserUUID()
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestJWTService_ValidateToken(t *testing.T) {
	service := newTestJWTService(time.Hour)

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := service.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		expired := newTestJWTService(-time.Minute)
		token, _, err := expired.GenerateToken(uuid.New(), "")
		require.NoError(t, err)

		_, err = expired.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("rejects a token signed with a different secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{
			Secret:                "another-secret-key-with-32-chars!!!",
			AccessTokenExpiration: time.Hour,
			Issuer:                "postpilot",
		})
		token, _, err := other.GenerateToken(uuid.New(), "")
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects a token without a user id", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
			SignedString([]byte("test-secret-key-at-least-32-chars!!"))
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrMissingUserID)
	})

	t.Run("rejects an unsigned token", func(t *testing.T) {
		claims := &Claims{UserID: uuid.New().String()}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestClaims_GetRemainingTTL(t *testing.T) {
	service := newTestJWTService(time.Hour)
	token, _, err := service.GenerateToken(uuid.New(), "")
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)

	ttl := claims.GetRemainingTTL()
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)
}
