package retry

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable is returned when the circuit breaker rejects
// a request before any attempt is made.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// TransientError marks an error as retryable regardless of the
// default classification.
type TransientError struct {
	Err error
}

// Error implements error.
func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks an error as not retryable regardless of the
// default classification.
type PermanentError struct {
	Err error
}

// Error implements error.
func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// MarkTransient wraps err so the executor will retry it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// MarkPermanent wraps err so the executor will not retry it.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// ExhaustedError is returned when every attempt failed with a
// transient error.
type ExhaustedError struct {
	Upstream string
	Attempts int
	LastErr  error
}

// Error implements error.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted for %s after %d attempts: %v",
		e.Upstream, e.Attempts, e.LastErr)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsExhausted reports whether err is an ExhaustedError.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}
