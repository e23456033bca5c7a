package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceWatch/pkg/cache"

	"github.com/stretchr/testify/require"
)

func TestCooldownWindow(t *testing.T) {
	clk := newFakeClock()
	mc := cache.NewMemoryCache(cache.WithMemoryClock(clk.Now), cache.WithMemoryCleanup(0))
	defer mc.Close()
	g := NewCooldownGuard(mc, 60*time.Second)
	ctx := context.Background()

	ok, err := g.ShouldFire(ctx, "BTCUSDT", "PRICE_ABOVE:50000")
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(30 * time.Second)
	ok, err = g.ShouldFire(ctx, "BTCUSDT", "PRICE_ABOVE:50000")
	require.NoError(t, err)
	require.False(t, ok, "repeat inside the window must be suppressed")

	// other signatures and symbols have their own windows
	ok, err = g.ShouldFire(ctx, "BTCUSDT", "PRICE_BELOW:50000")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = g.ShouldFire(ctx, "ETHUSDT", "PRICE_ABOVE:50000")
	require.NoError(t, err)
	require.True(t, ok)

	n, err := g.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	clk.Advance(35 * time.Second)
	ok, err = g.ShouldFire(ctx, "BTCUSDT", "PRICE_ABOVE:50000")
	require.NoError(t, err)
	require.True(t, ok, "window elapsed at t=65s")
}

type brokenCache struct{}

func (brokenCache) TryLock(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}
func (brokenCache) Unlock(context.Context, string) error { return nil }
func (brokenCache) Exists(context.Context, ...string) (bool, error) {
	return false, errors.New("connection refused")
}
func (brokenCache) Keys(context.Context, string) ([]string, error) {
	return nil, errors.New("connection refused")
}
func (brokenCache) Close() error { return nil }

func TestCooldownFailsClosed(t *testing.T) {
	g := NewCooldownGuard(brokenCache{}, time.Minute)
	ok, err := g.ShouldFire(context.Background(), "BTCUSDT", "BREAKOUT:1")
	require.Error(t, err)
	require.False(t, ok)
}
