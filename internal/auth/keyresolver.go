package auth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeyResolver supplies signature-verification material to the verifier.
// Implementations are safe for concurrent use.
type KeyResolver interface {
	// Resolve returns the current verification key set.
	Resolve(ctx context.Context) (jwk.Set, error)
}

// StaticKeyResolver serves a fixed key set.
type StaticKeyResolver struct {
	set jwk.Set
}

// NewStaticKeyResolver creates a resolver over a fixed key set.
func NewStaticKeyResolver(set jwk.Set) *StaticKeyResolver {
	return &StaticKeyResolver{set: set}
}

// Resolve implements KeyResolver.
func (r *StaticKeyResolver) Resolve(_ context.Context) (jwk.Set, error) {
	if r.set == nil || r.set.Len() == 0 {
		return nil, fmt.Errorf("%w: empty key set", ErrKeyResolution)
	}
	return r.set, nil
}

// FileKeyResolver loads a JWKS document from a local file at construction.
type FileKeyResolver struct {
	set jwk.Set
}

// NewFileKeyResolver parses the JWKS file at path.
func NewFileKeyResolver(path string) (*FileKeyResolver, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrKeyResolution, path, err)
	}

	set, err := jwk.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrKeyResolution, path, err)
	}

	return &FileKeyResolver{set: set}, nil
}

// Resolve implements KeyResolver.
func (r *FileKeyResolver) Resolve(_ context.Context) (jwk.Set, error) {
	return r.set, nil
}

// RemoteKeyResolver fetches a JWKS endpoint and caches it with periodic
// background refresh.
type RemoteKeyResolver struct {
	url   string
	cache *jwk.Cache
}

// NewRemoteKeyResolver registers url with a refreshing JWKS cache. The
// cache refreshes in the background until ctx is cancelled.
func NewRemoteKeyResolver(ctx context.Context, url string, refreshInterval time.Duration) (*RemoteKeyResolver, error) {
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(url, jwk.WithMinRefreshInterval(refreshInterval)); err != nil {
		return nil, fmt.Errorf("%w: register %s: %v", ErrKeyResolution, url, err)
	}

	// Fail fast on an unreachable endpoint.
	if _, err := cache.Refresh(ctx, url); err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrKeyResolution, url, err)
	}

	return &RemoteKeyResolver{url: url, cache: cache}, nil
}

// Resolve implements KeyResolver.
func (r *RemoteKeyResolver) Resolve(ctx context.Context) (jwk.Set, error) {
	set, err := r.cache.Get(ctx, r.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyResolution, err)
	}
	return set, nil
}
