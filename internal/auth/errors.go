package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for credential verification.
var (
	// ErrNoCredentials indicates that no credential was provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrTokenMalformed indicates that the credential is not a
	// structurally valid token.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenExpired indicates that the token has expired.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenNotYetValid indicates that the token is not yet valid.
	ErrTokenNotYetValid = errors.New("token is not yet valid")

	// ErrTokenInvalidSignature indicates that the token signature is invalid.
	ErrTokenInvalidSignature = errors.New("token signature is invalid")

	// ErrInvalidIssuer indicates that the token issuer is invalid.
	ErrInvalidIssuer = errors.New("token issuer is invalid")

	// ErrInvalidAudience indicates that the token audience is invalid.
	ErrInvalidAudience = errors.New("token audience is invalid")

	// ErrInvalidAPIKey indicates that the API key is not recognized.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrKeyResolution indicates that verification keys could not be resolved.
	ErrKeyResolution = errors.New("failed to resolve verification keys")
)

// AuthError represents an authentication error with additional context.
// Authentication failures are never transient and are never retried.
type AuthError struct {
	Type    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *AuthError) Is(target error) bool {
	_, ok := target.(*AuthError)
	return ok || errors.Is(e.Cause, target)
}

// NewAuthError creates a new AuthError.
func NewAuthError(authType, message string, cause error) *AuthError {
	return &AuthError{
		Type:    authType,
		Message: message,
		Cause:   cause,
	}
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
