package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Classifier reports whether an error is transient and worth
// retrying.
type Classifier func(err error) bool

// IsTransient classifies err. Explicit TransientError and
// PermanentError wrappers take precedence over classify; context
// cancellation is never transient.
func IsTransient(err error, classify Classifier) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if classify == nil {
		classify = DefaultClassifier
	}
	return classify(err)
}

// DefaultClassifier treats network failures, timeouts, and the usual
// retryable gRPC codes as transient. Anything it does not recognize
// is permanent.
func DefaultClassifier(err error) bool {
	return isNetworkError(err) || isRetryableGRPCError(err)
}

// isNetworkError reports whether err looks like a connection-level
// failure.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || isNetworkError(urlErr.Err)
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	return false
}

// isRetryableGRPCError reports whether err carries a gRPC status code
// worth retrying.
func isRetryableGRPCError(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}
