package cache

import (
	"context"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqpipe/reqpipe/internal/config"
	"github.com/reqpipe/reqpipe/internal/observability"
)

// counterValue reads the current value of a counter child. Metrics are
// process-global, so tests assert on deltas.
func counterValue(t *testing.T, labels ...string) func() float64 {
	t.Helper()
	return func() float64 {
		var m dto.Metric
		c, err := getCacheMetrics().hitsTotal.GetMetricWithLabelValues(labels...)
		require.NoError(t, err)
		require.NoError(t, c.Write(&m))
		return m.GetCounter().GetValue()
	}
}

func TestMetrics_HitsCounted(t *testing.T) {
	store := newMemoryStore(&config.CacheConfig{MaxEntries: 10}, observability.NopLogger())
	t.Cleanup(func() { _ = store.Close() })

	hits := counterValue(t, "memory")
	before := hits()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k1", []byte("v1"), time.Minute))
	_, err := store.Get(ctx, "k1")
	require.NoError(t, err)

	assert.Equal(t, before+1, hits())
}

func TestMetrics_SingletonInstance(t *testing.T) {
	assert.Same(t, getCacheMetrics(), getCacheMetrics())
}
