package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reqpipe/reqpipe/internal/config"
	"github.com/reqpipe/reqpipe/internal/observability"
)

// cacheTracerName is the OpenTelemetry tracer name for cache operations.
const cacheTracerName = "reqpipe/cache"

// memoryStore implements an in-memory LRU store.
type memoryStore struct {
	logger        observability.Logger
	maxEntries    int
	sweepInterval time.Duration

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List

	hits   int64
	misses int64

	// stopCh signals the sweep goroutine to stop.
	stopCh   chan struct{}
	stopOnce sync.Once
}

// memoryEntry represents an entry in the memory store.
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// expired reports whether the entry's lifetime has elapsed. The
// expiry instant itself is already expired.
func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// newMemoryStore creates a new in-memory store and starts its sweep
// goroutine.
func newMemoryStore(cfg *config.CacheConfig, logger observability.Logger) *memoryStore {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	sweepInterval := cfg.SweepInterval.Duration()
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	s := &memoryStore{
		logger:        logger,
		maxEntries:    maxEntries,
		sweepInterval: sweepInterval,
		items:         make(map[string]*list.Element),
		eviction:      list.New(),
		stopCh:        make(chan struct{}),
	}

	go s.sweepLoop()

	logger.Info("memory cache initialized",
		observability.Int("maxEntries", maxEntries),
		observability.Duration("sweepInterval", sweepInterval))

	return s
}

// Get retrieves a value from the store. Expired entries are removed
// on access and reported as a miss.
func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		getCacheMetrics().operationDuration.WithLabelValues(
			"memory", "get",
		).Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.items[key]
	if !exists {
		atomic.AddInt64(&s.misses, 1)
		getCacheMetrics().missesTotal.WithLabelValues("memory").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)
	if entry.expired(time.Now()) {
		s.removeElement(elem)
		atomic.AddInt64(&s.misses, 1)
		getCacheMetrics().missesTotal.WithLabelValues("memory").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	s.eviction.MoveToFront(elem)

	atomic.AddInt64(&s.hits, 1)
	getCacheMetrics().hitsTotal.WithLabelValues("memory").Inc()

	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int("cache.value_size", len(entry.value)),
	)

	return entry.value, nil
}

// Set stores a value, evicting least recently used entries when over
// capacity.
func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
			attribute.Int("cache.value_size", len(value)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		getCacheMetrics().operationDuration.WithLabelValues(
			"memory", "set",
		).Observe(time.Since(start).Seconds())
	}()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	entry := &memoryEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.items[key]; exists {
		s.eviction.MoveToFront(elem)
		elem.Value = entry
		return nil
	}

	elem := s.eviction.PushFront(entry)
	s.items[key] = elem

	for s.eviction.Len() > s.maxEntries {
		s.evictOldest()
	}

	getCacheMetrics().sizeGauge.WithLabelValues("memory").Set(float64(s.eviction.Len()))

	s.logger.Debug("cache set",
		observability.String(observability.FieldCacheKey, key),
		observability.Duration("ttl", ttl),
		observability.Int("size", s.eviction.Len()))

	return nil
}

// Delete removes a value from the store.
func (s *memoryStore) Delete(ctx context.Context, key string) error {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.items[key]; exists {
		s.removeElement(elem)
	}

	return nil
}

// Close stops the sweep goroutine and drops all entries.
func (s *memoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.eviction.Init()

	return nil
}

// Stats returns store statistics.
func (s *memoryStore) Stats() Stats {
	s.mu.Lock()
	size := int64(s.eviction.Len())
	s.mu.Unlock()

	return Stats{
		Hits:   atomic.LoadInt64(&s.hits),
		Misses: atomic.LoadInt64(&s.misses),
		Size:   size,
	}
}

// evictOldest removes the least recently used entry.
// Must be called with the lock held.
func (s *memoryStore) evictOldest() {
	elem := s.eviction.Back()
	if elem != nil {
		s.removeElement(elem)
		getCacheMetrics().evictionsTotal.WithLabelValues("memory").Inc()
	}
}

// removeElement removes an element from both the map and the list.
// Must be called with the lock held.
func (s *memoryStore) removeElement(elem *list.Element) {
	s.eviction.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(s.items, entry.key)
}

// sweepLoop periodically removes expired entries so that entries that
// are never read again do not accumulate.
func (s *memoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep removes expired entries under a single write lock.
func (s *memoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element

	for elem := s.eviction.Back(); elem != nil; elem = elem.Prev() {
		if elem.Value.(*memoryEntry).expired(now) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		s.removeElement(elem)
	}

	if len(toRemove) > 0 {
		getCacheMetrics().sizeGauge.WithLabelValues("memory").Set(float64(s.eviction.Len()))
		s.logger.Debug("cache sweep completed",
			observability.Int("removed", len(toRemove)))
	}
}
