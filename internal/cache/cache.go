// Package cache provides the response cache for the request pipeline.
package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/reqpipe/reqpipe/internal/config"
	"github.com/reqpipe/reqpipe/internal/observability"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrConnectionFailed indicates that the cache backend is unreachable.
	ErrConnectionFailed = errors.New("cache connection failed")
)

// Store is the backend storage interface for cached responses.
type Store interface {
	// Get retrieves a value from the store.
	// Returns ErrCacheMiss if the key is not found or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL.
	// A TTL of 0 means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the store.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// StoreWithStats extends Store with statistics.
type StoreWithStats interface {
	Store

	// Stats returns store statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	// Hits is the number of cache hits.
	Hits int64

	// Misses is the number of cache misses.
	Misses int64

	// Size is the current number of entries.
	Size int64
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Loader produces the value for a key when the cache has no entry.
type Loader func(ctx context.Context) ([]byte, error)

// ResponseCache is a read-through cache over a Store. Concurrent
// lookups for the same key are collapsed into a single load; every
// waiter receives the loader's result, success or failure. Failed
// loads are never stored.
type ResponseCache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger observability.Logger
}

// ResponseCacheOption configures a ResponseCache.
type ResponseCacheOption func(*ResponseCache)

// WithCacheLogger sets the logger.
func WithCacheLogger(logger observability.Logger) ResponseCacheOption {
	return func(c *ResponseCache) {
		c.logger = logger
	}
}

// NewResponseCache creates a read-through cache over store with the
// given default TTL.
func NewResponseCache(store Store, ttl time.Duration, opts ...ResponseCacheOption) *ResponseCache {
	c := &ResponseCache{
		store:  store,
		ttl:    ttl,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrLoad returns the cached value for key, invoking load on a miss.
// While a load for key is in flight, other callers for the same key
// wait for its result instead of starting their own load, including
// when the backing store is unavailable. A ttl of 0 stores the entry
// with the cache-wide default.
func (c *ResponseCache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	value, err := c.store.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	storeDown := !errors.Is(err, ErrCacheMiss)
	if storeDown {
		// Backend failure degrades to an uncached load rather than
		// failing the request.
		c.logger.Warn("cache backend unavailable, loading without store",
			observability.String(observability.FieldCacheKey, key),
			observability.Error(err))
	}

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if !storeDown {
			if setErr := c.store.Set(ctx, key, value, ttl); setErr != nil {
				c.logger.Warn("failed to store cached response",
					observability.String(observability.FieldCacheKey, key),
					observability.Error(setErr))
			}
		}
		return value, nil
	})
	switch {
	case shared:
		recordLoad("coalesced")
	case storeDown:
		recordLoad("degraded")
	default:
		recordLoad("loaded")
	}
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Invalidate removes the entry for key.
func (c *ResponseCache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// Store returns the underlying store.
func (c *ResponseCache) Store() Store {
	return c.store
}

// Close closes the underlying store.
func (c *ResponseCache) Close() error {
	return c.store.Close()
}

// NewStore creates a store based on the configuration.
func NewStore(cfg *config.CacheConfig, logger observability.Logger) (Store, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	switch cfg.Type {
	case config.CacheTypeMemory, "":
		return newMemoryStore(cfg, logger), nil
	case config.CacheTypeRedis:
		return newRedisStore(cfg, logger)
	default:
		return nil, errors.New("unknown cache type: " + cfg.Type)
	}
}
