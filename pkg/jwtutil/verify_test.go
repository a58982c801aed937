package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("s3cret", "wallet-auth")

	tok, err := v.Sign("5f0c3b7e-8d3a-4c51-9d7e-2a6f1f0e9b11", RoleAdmin, time.Minute)
	require.NoError(t, err)

	claims, err := v.ParseAndValidate(tok)
	require.NoError(t, err)
	assert.Equal(t, "5f0c3b7e-8d3a-4c51-9d7e-2a6f1f0e9b11", claims.UserID)
	assert.True(t, claims.IsAdmin())
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("s3cret", "wallet-auth")

	expired, err := v.Sign("u1", RoleUser, -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewVerifier("other", "wallet-auth").Sign("u1", RoleUser, time.Minute)
	require.NoError(t, err)

	otherIssuer, err := NewVerifier("s3cret", "someone-else").Sign("u1", RoleUser, time.Minute)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"alg none":     noneAlg,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.ParseAndValidate(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
