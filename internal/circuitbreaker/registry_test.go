package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqpipe/reqpipe/internal/observability"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry(DefaultConfig(), observability.NopLogger())

	b1 := r.GetOrCreate("upstream-a")
	b2 := r.GetOrCreate("upstream-a")
	assert.Same(t, b1, b2)

	b3 := r.GetOrCreate("upstream-b")
	assert.NotSame(t, b1, b3)
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(nil, nil)

	assert.Nil(t, r.Get("missing"))

	created := r.GetOrCreate("upstream-a")
	assert.Same(t, created, r.Get("upstream-a"))
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry(DefaultConfig(), observability.NopLogger())

	const goroutines = 16
	breakers := make([]*Breaker, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			breakers[i] = r.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, breakers[0], breakers[i])
	}
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_BreakersAreIndependent(t *testing.T) {
	cfg := DefaultConfig().WithFailureThreshold(1).WithCoolDown(time.Minute)
	r := NewRegistry(cfg, observability.NopLogger())

	r.GetOrCreate("upstream-a").RecordFailure()

	assert.Equal(t, StateOpen, r.GetOrCreate("upstream-a").State())
	assert.Equal(t, StateClosed, r.GetOrCreate("upstream-b").State())
}

func TestRegistry_ResetAll(t *testing.T) {
	cfg := DefaultConfig().WithFailureThreshold(1)
	r := NewRegistry(cfg, observability.NopLogger())

	r.GetOrCreate("upstream-a").RecordFailure()
	r.GetOrCreate("upstream-b").RecordFailure()

	r.ResetAll()

	for name, stats := range r.Stats() {
		assert.Equal(t, StateClosed, stats.State, "breaker %s", name)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(nil, nil)

	r.GetOrCreate("upstream-a")
	require.Equal(t, 1, r.Count())

	r.Remove("upstream-a")
	assert.Equal(t, 0, r.Count())
	assert.Nil(t, r.Get("upstream-a"))
}
