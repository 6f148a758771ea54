package authz

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDenied is the sentinel all authorization denials wrap.
var ErrDenied = errors.New("authorization denied")

// DeniedError is returned when no rule allows the request. It carries
// the full decision context for audit logging.
type DeniedError struct {
	// Roles are the principal's roles at decision time.
	Roles []string

	// Resource is the resource the principal requested.
	Resource string

	// Action is the action the principal requested.
	Action string
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("authorization denied: roles=[%s] resource=%q action=%q",
		strings.Join(e.Roles, ","), e.Resource, e.Action)
}

// Is makes errors.Is(err, ErrDenied) match.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// IsDenied checks if an error is an authorization denial.
func IsDenied(err error) bool {
	return errors.Is(err, ErrDenied)
}
