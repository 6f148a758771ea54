// Package retry provides bounded retry with exponential backoff for
// upstream calls, coordinated with per-upstream circuit breakers.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/reqpipe/reqpipe/internal/circuitbreaker"
	"github.com/reqpipe/reqpipe/internal/config"
	"github.com/reqpipe/reqpipe/internal/observability"
)

// Config contains retry configuration parameters.
type Config struct {
	// MaxAttempts is the total number of attempts, including the
	// first one.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential delay growth.
	MaxDelay time.Duration

	// Jitter is the random fraction (0.0 to 1.0) added to each
	// delay.
	Jitter float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.25,
	}
}

// Validate clamps invalid values to defaults.
func (c *Config) Validate() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		c.Jitter = 0.25
	}
}

// FromConfig builds a Config from the pipeline configuration.
func FromConfig(cfg config.RetryConfig) *Config {
	return &Config{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay.Duration(),
		MaxDelay:    cfg.MaxDelay.Duration(),
		Jitter:      cfg.Jitter,
	}
}

// Operation is a single upstream call attempt.
type Operation func(ctx context.Context) error

// Executor runs operations with bounded retry. The circuit breaker
// for the upstream is consulted before every attempt; a rejected
// request consumes no attempt and reaches no upstream.
type Executor struct {
	config   *Config
	breakers *circuitbreaker.Registry
	classify Classifier
	logger   observability.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClassifier overrides the default transient-error classifier.
func WithClassifier(classify Classifier) ExecutorOption {
	return func(e *Executor) {
		e.classify = classify
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger observability.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates a retry executor backed by the given breaker
// registry.
func NewExecutor(cfg *Config, breakers *circuitbreaker.Registry, opts ...ExecutorOption) *Executor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Validate()

	e := &Executor{
		config:   cfg,
		breakers: breakers,
		classify: DefaultClassifier,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs op against the named upstream. Transient failures are
// retried up to MaxAttempts with exponentially growing, jittered
// delays; permanent failures return after a single invocation. Every
// outcome is reported to the upstream's circuit breaker.
func (e *Executor) Execute(ctx context.Context, upstream string, op Operation) error {
	breaker := e.breakers.GetOrCreate(upstream)

	var lastErr error

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if !breaker.Allow() {
			recordRejected(upstream)
			if lastErr != nil {
				return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, lastErr)
			}
			return fmt.Errorf("%w: circuit open for %s", ErrUpstreamUnavailable, upstream)
		}

		err := op(ctx)
		if err == nil {
			breaker.RecordSuccess()
			recordAttempt(upstream, "success")
			return nil
		}

		breaker.RecordFailure()
		lastErr = err

		if !IsTransient(err, e.classify) {
			recordAttempt(upstream, "permanent")
			return err
		}
		recordAttempt(upstream, "transient")

		if attempt == e.config.MaxAttempts {
			break
		}

		delay := e.delayFor(attempt)

		e.logger.Debug("retrying upstream call",
			observability.String(observability.FieldUpstream, upstream),
			observability.Int(observability.FieldAttempt, attempt),
			observability.Duration("delay", delay),
			observability.Error(err))

		if err := e.wait(ctx, delay); err != nil {
			return err
		}
	}

	recordExhausted(upstream)

	return &ExhaustedError{
		Upstream: upstream,
		Attempts: e.config.MaxAttempts,
		LastErr:  lastErr,
	}
}

// delayFor returns the backoff delay after the given 1-based attempt:
// min(maxDelay, baseDelay*2^(attempt-1)) plus a random jitter
// fraction.
func (e *Executor) delayFor(attempt int) time.Duration {
	backoff := float64(e.config.BaseDelay) * math.Pow(2, float64(attempt-1))
	if backoff > float64(e.config.MaxDelay) {
		backoff = float64(e.config.MaxDelay)
	}

	//nolint:gosec // G404: retry jitter is not security-sensitive
	backoff += backoff * e.config.Jitter * rand.Float64()

	recordBackoff(time.Duration(backoff))

	return time.Duration(backoff)
}

// wait sleeps for delay unless the context ends first. A deadline
// that cannot outlast the delay fails fast instead of sleeping into
// certain expiry.
func (e *Executor) wait(ctx context.Context, delay time.Duration) error {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		return context.DeadlineExceeded
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
