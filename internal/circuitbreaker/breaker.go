// Package circuitbreaker guards upstream calls against cascading
// failures by rejecting requests while an upstream is unhealthy.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/reqpipe/reqpipe/internal/observability"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and requests flow.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and requests are
	// rejected without reaching the upstream.
	StateOpen

	// StateHalfOpen indicates the circuit is testing the upstream
	// with a single probe request.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker implements a per-upstream circuit breaker. The circuit
// opens after a configured number of consecutive failures, rejects
// requests for a cool-down period, then admits exactly one probe.
// The probe's outcome decides whether the circuit closes or re-opens.
type Breaker struct {
	name   string
	config *Config
	logger observability.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	openedAt         time.Time

	// probeInFlight is true while the single half-open probe has
	// been admitted but not yet recorded.
	probeInFlight bool
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithBreakerLogger sets the logger.
func WithBreakerLogger(logger observability.Logger) BreakerOption {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		b.now = now
	}
}

// NewBreaker creates a circuit breaker for the named upstream.
func NewBreaker(name string, config *Config, opts ...BreakerOption) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	config.Validate()

	b := &Breaker{
		name:   name,
		config: config,
		logger: observability.NopLogger(),
		now:    time.Now,
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}

	recordState(name, StateClosed)

	return b
}

// Allow reports whether a request may proceed. In the open state the
// check is a timestamp comparison and admits nothing until the
// cool-down elapses. The first Allow after the cool-down admits a
// single probe; further calls are rejected until the probe's outcome
// is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	var allowed bool

	switch b.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.config.CoolDown {
			b.transitionTo(StateHalfOpen)
			b.probeInFlight = true
			allowed = true
		}

	case StateHalfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			allowed = true
		}
	}

	recordRequest(b.name, allowed)

	return allowed
}

// RecordSuccess records a successful request. A successful half-open
// probe closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFails = 0

	recordSuccess(b.name)

	if b.state == StateHalfOpen {
		b.probeInFlight = false
		b.transitionTo(StateClosed)
	}
}

// RecordFailure records a failed request. Reaching the failure
// threshold opens the circuit; a failed half-open probe re-opens it
// with a fresh cool-down.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	recordFailure(b.name)

	switch b.state {
	case StateClosed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.config.FailureThreshold {
			b.transitionTo(StateOpen)
			b.openedAt = b.now()
		}

	case StateHalfOpen:
		b.probeInFlight = false
		b.transitionTo(StateOpen)
		b.openedAt = b.now()
	}
}

// Execute runs fn under circuit breaker protection.
func (b *Breaker) Execute(_ context.Context, fn func() error) error {
	if !b.Allow() {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil {
		b.RecordFailure()
		return err
	}

	b.RecordSuccess()
	return nil
}

// transitionTo moves the breaker to a new state.
// Must be called with the lock held.
func (b *Breaker) transitionTo(newState State) {
	oldState := b.state
	if oldState == newState {
		return
	}
	b.state = newState
	b.consecutiveFails = 0

	recordStateChange(b.name, oldState, newState)

	b.logger.Info("circuit breaker state changed",
		observability.String(observability.FieldUpstream, b.name),
		observability.String("from", oldState.String()),
		observability.String("to", newState.String()),
	)

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(b.name, oldState, newState)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transitionTo(StateClosed)
	b.probeInFlight = false
	b.consecutiveFails = 0

	b.logger.Info("circuit breaker reset",
		observability.String(observability.FieldUpstream, b.name))
}

// Name returns the upstream name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Stats returns the current breaker statistics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		State:            b.state,
		ConsecutiveFails: b.consecutiveFails,
		OpenedAt:         b.openedAt,
	}
}

// Stats holds circuit breaker statistics.
type Stats struct {
	State            State
	ConsecutiveFails int
	OpenedAt         time.Time
}
