package pipeline

import (
	"context"
	"errors"
	"net/http"

	"github.com/reqpipe/reqpipe/internal/auth"
	"github.com/reqpipe/reqpipe/internal/authz"
	"github.com/reqpipe/reqpipe/internal/retry"
	"github.com/reqpipe/reqpipe/internal/upstream"
)

// Class groups pipeline failures by how the transport should report
// them.
type Class int

const (
	// ClassInternal covers unclassified failures.
	ClassInternal Class = iota

	// ClassUnauthorized covers authentication failures.
	ClassUnauthorized

	// ClassForbidden covers authorization denials.
	ClassForbidden

	// ClassUnavailable covers requests rejected by an open circuit.
	ClassUnavailable

	// ClassUpstream covers upstream call failures, including
	// exhausted retries.
	ClassUpstream

	// ClassTimeout covers deadline expiry.
	ClassTimeout
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case ClassUnauthorized:
		return "unauthorized"
	case ClassForbidden:
		return "forbidden"
	case ClassUnavailable:
		return "unavailable"
	case ClassUpstream:
		return "upstream_error"
	case ClassTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// HTTPStatus maps the class to an HTTP status code.
func (c Class) HTTPStatus() int {
	switch c {
	case ClassUnauthorized:
		return http.StatusUnauthorized
	case ClassForbidden:
		return http.StatusForbidden
	case ClassUnavailable:
		return http.StatusServiceUnavailable
	case ClassUpstream:
		return http.StatusBadGateway
	case ClassTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Classify maps a pipeline error to its class. Order matters: an
// open circuit is reported as unavailable even though the wrapped
// cause may also be an upstream error.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassInternal
	case auth.IsAuthError(err):
		return ClassUnauthorized
	case authz.IsDenied(err):
		return ClassForbidden
	case errors.Is(err, retry.ErrUpstreamUnavailable):
		return ClassUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case retry.IsExhausted(err), isUpstreamError(err):
		return ClassUpstream
	default:
		return ClassInternal
	}
}

func isUpstreamError(err error) bool {
	var statusErr *upstream.StatusError
	return errors.As(err, &statusErr)
}
