package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKeys holds a signing key and the matching public key set.
type testKeys struct {
	private jwk.Key
	set     jwk.Set
}

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	private, err := jwk.FromRaw(rsaKey)
	require.NoError(t, err)
	require.NoError(t, private.Set(jwk.KeyIDKey, "test-key-id"))
	require.NoError(t, private.Set(jwk.AlgorithmKey, "RS256"))

	public, err := jwk.FromRaw(rsaKey.Public())
	require.NoError(t, err)
	require.NoError(t, public.Set(jwk.KeyIDKey, "test-key-id"))
	require.NoError(t, public.Set(jwk.AlgorithmKey, "RS256"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(public))

	return &testKeys{private: private, set: set}
}

// mintToken signs a token with the test key after applying mutations.
func (k *testKeys) mintToken(t *testing.T, mutate func(b *jwt.Builder)) string {
	t.Helper()

	builder := jwt.NewBuilder().
		Subject("user-42").
		Issuer("https://issuer.example.com").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Claim("roles", []string{"viewer", "editor"})

	if mutate != nil {
		mutate(builder)
	}

	token, err := builder.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, k.private))
	require.NoError(t, err)

	return string(signed)
}

func newTestVerifier(t *testing.T, keys *testKeys, opts ...VerifierOption) Verifier {
	t.Helper()

	v, err := NewJWTVerifier(NewStaticKeyResolver(keys.set), opts...)
	require.NoError(t, err)
	return v
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	keys := newTestKeys(t)
	v := newTestVerifier(t, keys)

	principal, err := v.Verify(context.Background(), keys.mintToken(t, nil))
	require.NoError(t, err)

	assert.Equal(t, "user-42", principal.Subject)
	assert.Equal(t, []string{"viewer", "editor"}, principal.Roles)
	assert.False(t, principal.ExpiresAt.IsZero())
	assert.True(t, principal.HasRole("viewer"))
	assert.False(t, principal.HasRole("admin"))
}

func TestJWTVerifier_EmptyCredential(t *testing.T) {
	keys := newTestKeys(t)
	v := newTestVerifier(t, keys)

	_, err := v.Verify(context.Background(), "")
	require.ErrorIs(t, err, ErrNoCredentials)
	assert.True(t, IsAuthError(err))
}

func TestJWTVerifier_Malformed(t *testing.T) {
	keys := newTestKeys(t)
	v := newTestVerifier(t, keys)

	for _, credential := range []string{"not-a-token", "a.b", "x.y.z"} {
		_, err := v.Verify(context.Background(), credential)
		require.ErrorIs(t, err, ErrTokenMalformed, "credential %q", credential)
	}
}

func TestJWTVerifier_InvalidSignature(t *testing.T) {
	keys := newTestKeys(t)
	other := newTestKeys(t)

	// Verifier trusts `keys`, token signed by `other`.
	v := newTestVerifier(t, keys)

	_, err := v.Verify(context.Background(), other.mintToken(t, nil))
	require.ErrorIs(t, err, ErrTokenInvalidSignature)
}

func TestJWTVerifier_Expired(t *testing.T) {
	keys := newTestKeys(t)
	v := newTestVerifier(t, keys)

	expired := keys.mintToken(t, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-time.Hour))
	})

	_, err := v.Verify(context.Background(), expired)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWTVerifier_ExpiredWithinSkew(t *testing.T) {
	keys := newTestKeys(t)
	v := newTestVerifier(t, keys, WithClockSkew(time.Minute))

	justExpired := keys.mintToken(t, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-10 * time.Second))
	})

	_, err := v.Verify(context.Background(), justExpired)
	require.NoError(t, err)
}

func TestJWTVerifier_NotYetValid(t *testing.T) {
	keys := newTestKeys(t)
	v := newTestVerifier(t, keys)

	future := keys.mintToken(t, func(b *jwt.Builder) {
		b.NotBefore(time.Now().Add(time.Hour))
	})

	_, err := v.Verify(context.Background(), future)
	require.ErrorIs(t, err, ErrTokenNotYetValid)
}

func TestJWTVerifier_IssuerCheck(t *testing.T) {
	keys := newTestKeys(t)
	v := newTestVerifier(t, keys, WithIssuer("https://issuer.example.com"))

	_, err := v.Verify(context.Background(), keys.mintToken(t, nil))
	require.NoError(t, err)

	wrong := keys.mintToken(t, func(b *jwt.Builder) {
		b.Issuer("https://evil.example.com")
	})
	_, err = v.Verify(context.Background(), wrong)
	require.ErrorIs(t, err, ErrInvalidIssuer)
}

func TestJWTVerifier_AudienceCheck(t *testing.T) {
	keys := newTestKeys(t)
	v := newTestVerifier(t, keys, WithAudience("orders-api"))

	ok := keys.mintToken(t, func(b *jwt.Builder) {
		b.Audience([]string{"orders-api", "billing-api"})
	})
	_, err := v.Verify(context.Background(), ok)
	require.NoError(t, err)

	missing := keys.mintToken(t, nil)
	_, err = v.Verify(context.Background(), missing)
	require.ErrorIs(t, err, ErrInvalidAudience)
}

func TestJWTVerifier_RolesClaimVariants(t *testing.T) {
	keys := newTestKeys(t)

	tests := []struct {
		name  string
		claim interface{}
		want  []string
	}{
		{name: "string array", claim: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "single string", claim: "admin", want: []string{"admin"}},
		{name: "empty string", claim: "", want: nil},
		{name: "non-string entries skipped", claim: []interface{}{"a", 7, "b"}, want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t, keys)
			token := keys.mintToken(t, func(b *jwt.Builder) {
				b.Claim("roles", tt.claim)
			})

			principal, err := v.Verify(context.Background(), token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, principal.Roles)
		})
	}
}

func TestJWTVerifier_CustomRolesClaim(t *testing.T) {
	keys := newTestKeys(t)
	v := newTestVerifier(t, keys, WithRolesClaim("groups"))

	token := keys.mintToken(t, func(b *jwt.Builder) {
		b.Claim("groups", []string{"ops"})
	})

	principal, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops"}, principal.Roles)
}

func TestJWTVerifier_MissingRolesClaim(t *testing.T) {
	keys := newTestKeys(t)
	v := newTestVerifier(t, keys, WithRolesClaim("absent"))

	principal, err := v.Verify(context.Background(), keys.mintToken(t, nil))
	require.NoError(t, err)
	assert.Empty(t, principal.Roles)
}

func TestNewJWTVerifier_NilResolver(t *testing.T) {
	_, err := NewJWTVerifier(nil)
	require.Error(t, err)
}

func TestStaticKeyResolver_Empty(t *testing.T) {
	r := NewStaticKeyResolver(jwk.NewSet())
	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, ErrKeyResolution)
}
