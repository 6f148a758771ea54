package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/reqpipe/reqpipe/internal/config"
	"github.com/reqpipe/reqpipe/internal/observability"
)

// apiKeyEntry maps a bcrypt hash to the principal it authenticates.
type apiKeyEntry struct {
	hash    []byte
	subject string
	roles   []string
}

// APIKeyVerifier authenticates static API keys against a bcrypt-hashed
// table. Plaintext keys are never stored.
type APIKeyVerifier struct {
	entries []apiKeyEntry
	logger  observability.Logger
}

// NewAPIKeyVerifier creates a verifier over the configured key table.
func NewAPIKeyVerifier(keys []config.APIKeyConfig, logger observability.Logger) *APIKeyVerifier {
	if logger == nil {
		logger = observability.NopLogger()
	}

	entries := make([]apiKeyEntry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, apiKeyEntry{
			hash:    []byte(key.Hash),
			subject: key.Subject,
			roles:   key.Roles,
		})
	}

	return &APIKeyVerifier{entries: entries, logger: logger}
}

// Verify implements Verifier.
func (v *APIKeyVerifier) Verify(_ context.Context, credential string) (*Principal, error) {
	start := time.Now()

	if credential == "" {
		recordVerification("apikey", "failure", time.Since(start))
		return nil, NewAuthError("apikey", "empty credential", ErrNoCredentials)
	}

	for _, entry := range v.entries {
		if bcrypt.CompareHashAndPassword(entry.hash, []byte(credential)) == nil {
			recordVerification("apikey", "success", time.Since(start))
			return &Principal{
				Subject: entry.subject,
				Roles:   entry.roles,
			}, nil
		}
	}

	recordVerification("apikey", "failure", time.Since(start))
	recordFailure("invalid_api_key")
	return nil, NewAuthError("apikey", "no matching key", ErrInvalidAPIKey)
}

// chainVerifier tries a primary verifier and falls back to a secondary
// one when the credential is not a structurally valid token for the
// primary. Used to accept static API keys alongside JWTs.
type chainVerifier struct {
	primary  Verifier
	fallback Verifier
}

// NewChainVerifier composes primary with a fallback consulted only on
// ErrTokenMalformed. Signature and expiry failures of well-formed tokens
// never fall through.
func NewChainVerifier(primary, fallback Verifier) Verifier {
	return &chainVerifier{primary: primary, fallback: fallback}
}

// Verify implements Verifier.
func (v *chainVerifier) Verify(ctx context.Context, credential string) (*Principal, error) {
	principal, err := v.primary.Verify(ctx, credential)
	if err == nil {
		return principal, nil
	}

	if v.fallback != nil && errors.Is(err, ErrTokenMalformed) {
		return v.fallback.Verify(ctx, credential)
	}

	return nil, err
}
