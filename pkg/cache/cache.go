package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service is the TTL key capability used for cooldown records.
type Service interface {
	// TryLock sets key with ttl only if no unexpired value exists and reports whether it did.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	// Keys lists live keys matching a glob pattern (e.g. "cooldown:BTCUSDT:*").
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// Clock returns the current time. Tests inject a fake clock.
type Clock func() time.Time
