// Package auth verifies request credentials and produces principals.
package auth

import (
	"context"
	"time"
)

// Principal is the authenticated identity derived from a credential.
// It is read-only after creation and lives for one request.
type Principal struct {
	// Subject is the principal's subject identifier.
	Subject string

	// Roles is the set of role names granted to the principal.
	Roles []string

	// IssuedAt is when the credential was issued, if known.
	IssuedAt time.Time

	// ExpiresAt is when the credential expires, if known.
	ExpiresAt time.Time
}

// HasRole reports whether the principal holds the given role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Verifier validates a bearer credential and produces a Principal.
// Verification is pure: it has no side effects beyond logging and metrics.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Principal, error)
}
