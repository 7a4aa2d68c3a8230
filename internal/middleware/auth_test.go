package middleware

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherpanel/backend/internal/config"
	"github.com/featherpanel/backend/internal/models"
)

func TestGenerateTokenRoundTrip(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpireHours: 24}
	user := &models.User{
		UUID:     "0b7a2d6e-1f7f-4a9e-8c3d-2f1e5b6a7c8d",
		Username: "admin",
		RoleID:   models.RoleAdmin,
	}
	user.ID = 7

	tokenString, err := GenerateToken(user, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, user.UUID, claims.UUID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, models.RoleAdmin, claims.RoleID)
	assert.Equal(t, "featherpanel", claims.Issuer)
}

func TestGenerateTokenWrongSecretRejected(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpireHours: 1}
	user := &models.User{Username: "admin", RoleID: models.RoleAdmin}

	tokenString, err := GenerateToken(user, cfg)
	require.NoError(t, err)

	_, err = jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("other-secret"), nil
	})
	assert.Error(t, err)
}
