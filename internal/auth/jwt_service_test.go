package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "splithaus"})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "splithaus", claims.Issuer)
}

func TestJWTServiceRejectsExpiredToken(t *testing.T) {
	current := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Minute, Clock: clock})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken("user-1")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTServiceRejectsWrongIssuer(t *testing.T) {
	issuing, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "other"})
	require.NoError(t, err)

	validating, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "splithaus"})
	require.NoError(t, err)

	token, err := issuing.GenerateAccessToken("user-1")
	require.NoError(t, err)

	_, err = validating.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}
