// Package upstream provides clients for the services the pipeline
// calls on cache misses.
package upstream

import (
	"context"
	"fmt"
)

// Request identifies what to fetch from an upstream.
type Request struct {
	// Resource is the resource path, e.g. "orders/7".
	Resource string

	// Action is the operation on the resource, e.g. "read".
	Action string

	// Params are additional request parameters.
	Params map[string]string
}

// Client calls an upstream service.
type Client interface {
	// Name identifies the upstream for circuit breaking and metrics.
	Name() string

	// Call performs the request and returns the response body.
	Call(ctx context.Context, req Request) ([]byte, error)
}

// StatusError is returned when an upstream responds with a non-2xx
// status.
type StatusError struct {
	Code int
	Body string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}
