package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"PriceWatch/internal/domain/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *RedisConditions {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping test; redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisConditions(client, "pwtest")
}

func TestRedisConditionsLifecycle(t *testing.T) {
	r := setupRedis(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, r.Put(ctx, cond("1001", "BTCUSDT", base)))
	require.NoError(t, r.Put(ctx, cond("1002", "BTCUSDT", base.Add(time.Second))))
	require.NoError(t, r.Put(ctx, cond("1003", "ETHUSDT", base.Add(2*time.Second))))

	exists, err := r.client.Exists(ctx, "pwtest:alert:1001").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), exists)

	members, err := r.client.SMembers(ctx, "pwtest:alerts:symbol:BTCUSDT").Result()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"1001", "1002"}, members)

	got, err := r.Get(ctx, "1001")
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", got.Symbol)
	require.True(t, got.Threshold.Equal(cond("", "", base).Threshold))
	require.True(t, got.CreatedAt.Equal(base))

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "1001", all[0].ID)

	ok, err := r.Delete(ctx, "1001")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.Delete(ctx, "1001")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = r.Get(ctx, "1001")
	require.ErrorIs(t, err, models.ErrConditionNotFound)

	btc, err := r.ListBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, btc, 1)
	require.Equal(t, "1002", btc[0].ID)

	// re-put under a new symbol moves the index entry
	require.NoError(t, r.Put(ctx, cond("1002", "SOLUSDT", base)))
	btc, err = r.ListBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Empty(t, btc)
}
