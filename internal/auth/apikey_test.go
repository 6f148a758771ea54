package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/reqpipe/reqpipe/internal/config"
)

func hashKey(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAPIKeyVerifier(t *testing.T) {
	v := NewAPIKeyVerifier([]config.APIKeyConfig{
		{
			Hash:    hashKey(t, "svc-key-1"),
			Subject: "service-a",
			Roles:   []string{"service"},
		},
		{
			Hash:    hashKey(t, "svc-key-2"),
			Subject: "service-b",
			Roles:   []string{"service", "admin"},
		},
	}, nil)

	principal, err := v.Verify(context.Background(), "svc-key-2")
	require.NoError(t, err)
	assert.Equal(t, "service-b", principal.Subject)
	assert.Equal(t, []string{"service", "admin"}, principal.Roles)

	_, err = v.Verify(context.Background(), "unknown-key")
	require.ErrorIs(t, err, ErrInvalidAPIKey)

	_, err = v.Verify(context.Background(), "")
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestChainVerifier_FallsBackOnMalformed(t *testing.T) {
	keys := newTestKeys(t)
	jwtV := newTestVerifier(t, keys)
	apiV := NewAPIKeyVerifier([]config.APIKeyConfig{
		{Hash: hashKey(t, "svc-key"), Subject: "service-a", Roles: []string{"service"}},
	}, nil)

	chain := NewChainVerifier(jwtV, apiV)

	// A valid JWT goes through the primary verifier.
	principal, err := chain.Verify(context.Background(), keys.mintToken(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "user-42", principal.Subject)

	// A non-JWT credential falls back to the API key table.
	principal, err = chain.Verify(context.Background(), "svc-key")
	require.NoError(t, err)
	assert.Equal(t, "service-a", principal.Subject)

	// An unrecognized non-JWT credential fails at the fallback.
	_, err = chain.Verify(context.Background(), "bogus")
	require.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestChainVerifier_NoFallthroughOnBadSignature(t *testing.T) {
	keys := newTestKeys(t)
	other := newTestKeys(t)

	jwtV := newTestVerifier(t, keys)
	apiV := NewAPIKeyVerifier(nil, nil)
	chain := NewChainVerifier(jwtV, apiV)

	// Well-formed JWT with a wrong signature must not be treated as an
	// API key candidate.
	_, err := chain.Verify(context.Background(), other.mintToken(t, nil))
	require.ErrorIs(t, err, ErrTokenInvalidSignature)
}

func TestChainVerifier_NilFallback(t *testing.T) {
	keys := newTestKeys(t)
	chain := NewChainVerifier(newTestVerifier(t, keys), nil)

	_, err := chain.Verify(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, ErrTokenMalformed)
}
