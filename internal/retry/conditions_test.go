package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient_Wrappers(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsTransient(MarkTransient(base), nil))
	assert.False(t, IsTransient(MarkPermanent(base), nil))
	assert.False(t, IsTransient(nil, nil))

	// Wrappers win over the classifier.
	always := func(error) bool { return true }
	assert.False(t, IsTransient(MarkPermanent(base), always))
}

func TestIsTransient_ContextErrorsNeverRetried(t *testing.T) {
	always := func(error) bool { return true }

	assert.False(t, IsTransient(context.Canceled, always))
	assert.False(t, IsTransient(context.DeadlineExceeded, always))
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{
			name:      "connection reset",
			err:       syscall.ECONNRESET,
			transient: true,
		},
		{
			name:      "connection refused",
			err:       syscall.ECONNREFUSED,
			transient: true,
		},
		{
			name:      "eof",
			err:       io.EOF,
			transient: true,
		},
		{
			name:      "unexpected eof",
			err:       io.ErrUnexpectedEOF,
			transient: true,
		},
		{
			name:      "net timeout",
			err:       timeoutError{},
			transient: true,
		},
		{
			name:      "net op error",
			err:       &net.OpError{Op: "dial", Err: errors.New("refused")},
			transient: true,
		},
		{
			name:      "url error wrapping op error",
			err:       &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial"}},
			transient: true,
		},
		{
			name:      "grpc unavailable",
			err:       status.Error(codes.Unavailable, "down"),
			transient: true,
		},
		{
			name:      "grpc resource exhausted",
			err:       status.Error(codes.ResourceExhausted, "throttled"),
			transient: true,
		},
		{
			name:      "grpc invalid argument",
			err:       status.Error(codes.InvalidArgument, "bad"),
			transient: false,
		},
		{
			name:      "plain error",
			err:       errors.New("validation failed"),
			transient: false,
		},
		{
			name:      "wrapped network error",
			err:       errors.Join(errors.New("request failed"), syscall.ECONNRESET),
			transient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, DefaultClassifier(tt.err))
		})
	}
}

func TestMark_NilPassthrough(t *testing.T) {
	assert.Nil(t, MarkTransient(nil))
	assert.Nil(t, MarkPermanent(nil))
}

func TestTransientError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	assert.ErrorIs(t, MarkTransient(base), base)
	assert.ErrorIs(t, MarkPermanent(base), base)
}
