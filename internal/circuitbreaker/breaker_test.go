package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock, threshold int, coolDown time.Duration) *Breaker {
	return NewBreaker("upstream-a",
		DefaultConfig().WithFailureThreshold(threshold).WithCoolDown(coolDown),
		WithClock(clock.Now))
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreaker(newFakeClock(), 3, 10*time.Second)

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State(), "still closed after %d failures", i+1)
	}

	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(newFakeClock(), 3, 10*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	// Failures are consecutive: the earlier ones no longer count.
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_RejectsDuringCoolDown(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, 1, 10*time.Second)

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	assert.False(t, b.Allow())

	clock.Advance(9 * time.Second)
	assert.False(t, b.Allow())

	clock.Advance(time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_ExactlyOneProbeInHalfOpen(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, 1, 10*time.Second)

	b.RecordFailure()
	clock.Advance(10 * time.Second)

	// The first request after the cool-down is the probe.
	require.True(t, b.Allow())

	// While the probe is in flight every other request is rejected.
	for i := 0; i < 5; i++ {
		assert.False(t, b.Allow())
	}

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_ConcurrentHalfOpenAdmitsOneProbe(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, 1, 10*time.Second)

	b.RecordFailure()
	clock.Advance(10 * time.Second)

	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow() {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted)
}

func TestBreaker_FailedProbeReopensWithFreshCoolDown(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, 1, 10*time.Second)

	b.RecordFailure()
	clock.Advance(10 * time.Second)

	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	// The cool-down restarts at the probe failure, not the original
	// opening.
	clock.Advance(9 * time.Second)
	assert.False(t, b.Allow())

	clock.Advance(time.Second)
	assert.True(t, b.Allow())
}

func TestBreaker_SuccessfulProbeClosesCleanly(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, 2, 10*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(10 * time.Second)

	require.True(t, b.Allow())
	b.RecordSuccess()
	require.Equal(t, StateClosed, b.State())

	// The failure count starts from zero after closing.
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_Execute(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, 1, 10*time.Second)

	opErr := errors.New("upstream failed")
	err := b.Execute(context.Background(), func() error { return opErr })
	assert.ErrorIs(t, err, opErr)
	assert.Equal(t, StateOpen, b.State())

	var called bool
	err = b.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "rejected request must not reach the upstream")

	clock.Advance(10 * time.Second)
	err = b.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OnStateChange(t *testing.T) {
	clock := newFakeClock()

	var mu sync.Mutex
	var transitions []string

	cfg := DefaultConfig().
		WithFailureThreshold(1).
		WithCoolDown(10 * time.Second).
		WithOnStateChange(func(name string, from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		})

	b := NewBreaker("upstream-a", cfg, WithClock(clock.Now))

	b.RecordFailure()
	clock.Advance(10 * time.Second)
	require.True(t, b.Allow())
	b.RecordSuccess()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_Reset(t *testing.T) {
	b := newTestBreaker(newFakeClock(), 1, 10*time.Second)

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{FailureThreshold: 0, CoolDown: 0}
	cfg.Validate()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.CoolDown)
}
