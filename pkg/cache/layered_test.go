package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// countingService counts TryLock calls that reach the shared layer.
type countingService struct {
	*MemoryCache
	tries int32
}

func (c *countingService) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&c.tries, 1)
	return c.MemoryCache.TryLock(ctx, key, ttl)
}

func TestLayeredTryLockShortCircuitsLocally(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	shared := &countingService{MemoryCache: NewMemoryCache(WithMemoryClock(clk.Now), WithMemoryCleanup(0))}
	defer shared.Close()
	lc := NewLayeredCache(shared, WithMemoryClock(clk.Now), WithMemoryCleanup(0))
	defer lc.Close()
	ctx := context.Background()

	if ok, err := lc.TryLock(ctx, "cooldown:BTCUSDT:PRICE_ABOVE:50000", time.Minute); err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	for i := 0; i < 3; i++ {
		if ok, _ := lc.TryLock(ctx, "cooldown:BTCUSDT:PRICE_ABOVE:50000", time.Minute); ok {
			t.Fatalf("lock should be held")
		}
	}
	if got := atomic.LoadInt32(&shared.tries); got != 1 {
		t.Fatalf("expected 1 shared TryLock, got %d", got)
	}

	clk.Advance(61 * time.Second)
	if ok, _ := lc.TryLock(ctx, "cooldown:BTCUSDT:PRICE_ABOVE:50000", time.Minute); !ok {
		t.Fatalf("expected lock after window")
	}
}

func TestLayeredRespectsLocksFromOtherInstances(t *testing.T) {
	shared := NewMemoryCache(WithMemoryCleanup(0))
	defer shared.Close()
	a := NewLayeredCache(shared, WithMemoryCleanup(0))
	b := NewLayeredCache(shared, WithMemoryCleanup(0))
	defer a.Close()
	defer b.Close()
	ctx := context.Background()

	if ok, _ := a.TryLock(ctx, "k", time.Minute); !ok {
		t.Fatalf("instance a should take the lock")
	}
	if ok, _ := b.TryLock(ctx, "k", time.Minute); ok {
		t.Fatalf("instance b must see the shared lock")
	}
	if ok, _ := b.Exists(ctx, "k"); !ok {
		t.Fatalf("expected key to exist via shared layer")
	}
	keys, err := b.Keys(ctx, "*")
	if err != nil || len(keys) != 1 {
		t.Fatalf("keys=%v err=%v", keys, err)
	}

	if err := a.Unlock(ctx, "k"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if ok, _ := b.TryLock(ctx, "k", time.Minute); !ok {
		t.Fatalf("expected lock after unlock")
	}
}
