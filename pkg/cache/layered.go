package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredCache puts a process-local memory layer in front of a shared store (usually Redis).
// The shared layer is authoritative for TryLock; the local layer remembers locks this process
// took so repeated checks inside a cooldown window skip the network round trip.
type LayeredCache struct {
	memCache *MemoryCache
	shared   Service
}

// NewLayeredCache wraps shared. The caller keeps ownership of shared and closes it.
func NewLayeredCache(shared Service, opts ...MemoryOption) *LayeredCache {
	return &LayeredCache{
		memCache: NewMemoryCache(opts...),
		shared:   shared,
	}
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if held, _ := lc.memCache.Exists(ctx, key); held {
		return false, nil
	}
	ok, err := lc.shared.TryLock(ctx, key, ttl)
	if err != nil || !ok {
		return ok, err
	}
	_, _ = lc.memCache.TryLock(ctx, key, ttl)
	return true, nil
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	if err := lc.memCache.Unlock(ctx, key); err != nil && !errors.Is(err, ErrCacheMiss) {
		return err
	}
	return lc.shared.Unlock(ctx, key)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if ok, _ := lc.memCache.Exists(ctx, keys...); ok {
		return true, nil
	}
	return lc.shared.Exists(ctx, keys...)
}

// Keys reads the shared layer so counts include locks taken by other instances.
func (lc *LayeredCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	return lc.shared.Keys(ctx, pattern)
}

// Close stops the memory layer only.
func (lc *LayeredCache) Close() error {
	return lc.memCache.Close()
}

var _ Service = (*LayeredCache)(nil)
