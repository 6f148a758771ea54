package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/reqpipe/reqpipe/internal/observability"
)

// jwtVerifier verifies JWT bearer credentials. Validation is staged so
// that failures map onto the error taxonomy: structural parse
// (ErrTokenMalformed), signature verification against the resolver's key
// set (ErrTokenInvalidSignature), then temporal and claim checks
// (ErrTokenExpired and friends).
type jwtVerifier struct {
	resolver   KeyResolver
	issuer     string
	audience   string
	rolesClaim string
	clockSkew  time.Duration
	logger     observability.Logger
}

// VerifierOption is a functional option for the JWT verifier.
type VerifierOption func(*jwtVerifier)

// WithIssuer requires the token's iss claim to match issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *jwtVerifier) {
		v.issuer = issuer
	}
}

// WithAudience requires audience to be present in the token's aud claim.
func WithAudience(audience string) VerifierOption {
	return func(v *jwtVerifier) {
		v.audience = audience
	}
}

// WithRolesClaim sets the private claim holding the principal's roles.
// Defaults to "roles".
func WithRolesClaim(claim string) VerifierOption {
	return func(v *jwtVerifier) {
		v.rolesClaim = claim
	}
}

// WithClockSkew sets the allowed clock skew for exp/nbf checks.
func WithClockSkew(skew time.Duration) VerifierOption {
	return func(v *jwtVerifier) {
		v.clockSkew = skew
	}
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(logger observability.Logger) VerifierOption {
	return func(v *jwtVerifier) {
		v.logger = logger
	}
}

// NewJWTVerifier creates a JWT credential verifier backed by resolver.
func NewJWTVerifier(resolver KeyResolver, opts ...VerifierOption) (Verifier, error) {
	if resolver == nil {
		return nil, fmt.Errorf("key resolver is required")
	}

	v := &jwtVerifier{
		resolver:   resolver,
		rolesClaim: "roles",
		logger:     observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Verify implements Verifier.
func (v *jwtVerifier) Verify(ctx context.Context, credential string) (*Principal, error) {
	start := time.Now()

	principal, err := v.verify(ctx, credential)
	if err != nil {
		recordVerification("jwt", "failure", time.Since(start))
		recordFailure(failureReason(err))
		v.logger.Debug("credential verification failed",
			observability.Error(err),
		)
		return nil, err
	}

	recordVerification("jwt", "success", time.Since(start))
	return principal, nil
}

func (v *jwtVerifier) verify(ctx context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, NewAuthError("jwt", "empty credential", ErrNoCredentials)
	}

	raw := []byte(credential)

	// Structural check first: a credential that does not parse as a JWS
	// never reaches key resolution.
	token, err := jwt.Parse(raw, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return nil, NewAuthError("jwt", "structural parse failed", ErrTokenMalformed)
	}

	keys, err := v.resolver.Resolve(ctx)
	if err != nil {
		return nil, NewAuthError("jwt", "key resolution failed", err)
	}

	if _, err := jws.Verify(raw, jws.WithKeySet(keys, jws.WithInferAlgorithmFromKey(true))); err != nil {
		return nil, NewAuthError("jwt", "signature verification failed", ErrTokenInvalidSignature)
	}

	now := time.Now()
	if exp := token.Expiration(); !exp.IsZero() && now.After(exp.Add(v.clockSkew)) {
		return nil, NewAuthError("jwt", fmt.Sprintf("expired at %s", exp.Format(time.RFC3339)), ErrTokenExpired)
	}
	if nbf := token.NotBefore(); !nbf.IsZero() && now.Before(nbf.Add(-v.clockSkew)) {
		return nil, NewAuthError("jwt", "nbf is in the future", ErrTokenNotYetValid)
	}

	if v.issuer != "" && token.Issuer() != v.issuer {
		return nil, NewAuthError("jwt", fmt.Sprintf("unexpected issuer %q", token.Issuer()), ErrInvalidIssuer)
	}
	if v.audience != "" && !containsString(token.Audience(), v.audience) {
		return nil, NewAuthError("jwt", "audience mismatch", ErrInvalidAudience)
	}

	return &Principal{
		Subject:   token.Subject(),
		Roles:     v.extractRoles(token),
		IssuedAt:  token.IssuedAt(),
		ExpiresAt: token.Expiration(),
	}, nil
}

// extractRoles reads the configured roles claim. Both string arrays and
// single-string claims are accepted.
func (v *jwtVerifier) extractRoles(token jwt.Token) []string {
	value, ok := token.Get(v.rolesClaim)
	if !ok {
		return nil
	}

	switch typed := value.(type) {
	case []string:
		return typed
	case []interface{}:
		roles := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	case string:
		if typed == "" {
			return nil
		}
		return []string{typed}
	default:
		return nil
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func failureReason(err error) string {
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Cause == nil {
		return "unknown"
	}

	switch authErr.Cause {
	case ErrNoCredentials:
		return "no_credentials"
	case ErrTokenMalformed:
		return "malformed"
	case ErrTokenExpired:
		return "expired"
	case ErrTokenNotYetValid:
		return "not_yet_valid"
	case ErrTokenInvalidSignature:
		return "signature_invalid"
	case ErrInvalidIssuer:
		return "invalid_issuer"
	case ErrInvalidAudience:
		return "invalid_audience"
	case ErrInvalidAPIKey:
		return "invalid_api_key"
	default:
		return "key_resolution"
	}
}
