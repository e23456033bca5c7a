package usecase

import (
	"context"
	"fmt"
	"time"

	"PriceWatch/pkg/cache"
)

const cooldownPrefix = "cooldown"

// CooldownGuard suppresses repeat firings of the same (symbol, signature) within a window.
type CooldownGuard struct {
	cache  cache.Service
	window time.Duration
}

func NewCooldownGuard(c cache.Service, window time.Duration) *CooldownGuard {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &CooldownGuard{cache: c, window: window}
}

// ShouldFire records a firing and returns true iff no unexpired record exists.
// A cache error is returned with false: without the record a repeat cannot be ruled out.
func (g *CooldownGuard) ShouldFire(ctx context.Context, symbol, signature string) (bool, error) {
	ok, err := g.cache.TryLock(ctx, cooldownKey(symbol, signature), g.window)
	if err != nil {
		return false, fmt.Errorf("cooldown %s %s: %w", symbol, signature, err)
	}
	return ok, nil
}

// Active counts unexpired cooldown records.
func (g *CooldownGuard) Active(ctx context.Context) (int, error) {
	keys, err := g.cache.Keys(ctx, cache.BuildPattern(cooldownPrefix+":"))
	if err != nil {
		return 0, fmt.Errorf("list cooldowns: %w", err)
	}
	return len(keys), nil
}

func (g *CooldownGuard) Window() time.Duration { return g.window }

func cooldownKey(symbol, signature string) string {
	return cache.GenerateKeyWithParams(cooldownPrefix, symbol, signature)
}
