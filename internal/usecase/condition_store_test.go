package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"PriceWatch/internal/domain/models"
	"PriceWatch/internal/repository"
	"PriceWatch/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*ConditionStore, *repository.MemoryConditions) {
	t.Helper()
	persist := repository.NewMemoryConditions()
	n := 0
	clk := newFakeClock()
	store := NewConditionStore(persist, logger.Nop(),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("c%d", n) }),
		WithStoreClock(func() time.Time { clk.Advance(time.Second); return clk.Now() }))
	return store, persist
}

func input(symbol string, kind models.Kind, threshold string) models.CreateConditionInput {
	return models.CreateConditionInput{
		Owner:     "alice",
		Symbol:    symbol,
		Kind:      kind,
		Threshold: decimal.RequireFromString(threshold),
	}
}

func TestConditionStoreCreateValidates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, input("btc-usdt", models.KindPriceAbove, "1"))
	require.ErrorIs(t, err, models.ErrInvalidSymbol)

	_, err = store.Create(ctx, input("   ", models.KindPriceAbove, "1"))
	require.ErrorIs(t, err, models.ErrInvalidSymbol)

	for _, sym := range []string{"BTC/USDT", "BTC_USDT", "ÉTHUSDT", strings.Repeat("A", models.MaxSymbolLength+1)} {
		_, err = store.Create(ctx, input(sym, models.KindPriceAbove, "1"))
		require.ErrorIs(t, err, models.ErrInvalidSymbol, sym)
	}

	// exactly at the limit, after trimming and upper-casing
	longest := strings.Repeat("a", models.MaxSymbolLength)
	c, err := store.Create(ctx, input(" "+longest+" ", models.KindPriceAbove, "1"))
	require.NoError(t, err)
	require.Equal(t, strings.ToUpper(longest), c.Symbol)
	_, err = store.Delete(ctx, c.ID)
	require.NoError(t, err)

	_, err = store.Create(ctx, input("BTCUSDT", models.KindPriceAbove, "0"))
	require.ErrorIs(t, err, models.ErrInvalidThreshold)

	_, err = store.Create(ctx, input("BTCUSDT", models.KindPriceBelow, "-3"))
	require.ErrorIs(t, err, models.ErrInvalidThreshold)

	_, err = store.Create(ctx, input("BTCUSDT", models.Kind("SIDEWAYS"), "1"))
	require.ErrorIs(t, err, models.ErrInvalidKind)

	require.Equal(t, 0, store.Stats().Total)
}

func TestConditionStoreIndexesBySymbol(t *testing.T) {
	store, persist := newTestStore(t)
	ctx := context.Background()

	a, err := store.Create(ctx, input(" btcusdt ", models.KindPriceAbove, "50000"))
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", a.Symbol)
	b, err := store.Create(ctx, input("BTCUSDT", models.KindPriceBelow, "40000"))
	require.NoError(t, err)
	c, err := store.Create(ctx, input("ETHUSDT", models.KindBreakout, "3000"))
	require.NoError(t, err)

	require.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, store.SymbolsWithConditions())
	require.Equal(t, models.StoreStats{Total: 3, BySymbol: map[string]int{"BTCUSDT": 2, "ETHUSDT": 1}}, store.Stats())

	ids := func(cs []models.Condition) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}
	require.Equal(t, []string{a.ID, b.ID}, ids(store.ForSymbol("BTCUSDT")))
	require.Equal(t, []string{a.ID, b.ID, c.ID}, ids(store.List("")))
	require.Empty(t, store.List("bob"))

	persisted, err := persist.ListBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, persisted, 2)

	ok, err := store.Delete(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, store.HasConditions("ETHUSDT"))
	require.Equal(t, []string{"BTCUSDT"}, store.SymbolsWithConditions())

	ok, err = store.Delete(ctx, c.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.Get(c.ID)
	require.ErrorIs(t, err, models.ErrConditionNotFound)
}

func TestConditionStoreSnapshotSurvivesDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	a, err := store.Create(ctx, input("BTCUSDT", models.KindPriceAbove, "1"))
	require.NoError(t, err)

	snap := store.ForSymbol("BTCUSDT")
	_, err = store.Delete(ctx, a.ID)
	require.NoError(t, err)

	require.Len(t, snap, 1)
	require.Equal(t, a.ID, snap[0].ID)
	require.False(t, store.Exists(a.ID))
}

func TestConditionStoreLoadRestoresOrder(t *testing.T) {
	store, persist := newTestStore(t)
	ctx := context.Background()
	for _, sym := range []string{"SOLUSDT", "BTCUSDT", "ETHUSDT"} {
		_, err := store.Create(ctx, input(sym, models.KindPriceAbove, "10"))
		require.NoError(t, err)
	}

	reloaded := NewConditionStore(persist, logger.Nop())
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, store.List(""), reloaded.List(""))
}

type failingPersistence struct{ *repository.MemoryConditions }

func (failingPersistence) Put(context.Context, *models.Condition) error {
	return errors.New("disk full")
}

func TestConditionStoreCreateLeavesIndexOnPersistError(t *testing.T) {
	store := NewConditionStore(failingPersistence{repository.NewMemoryConditions()}, logger.Nop())
	_, err := store.Create(context.Background(), input("BTCUSDT", models.KindPriceAbove, "1"))
	require.Error(t, err)
	require.Equal(t, 0, store.Stats().Total)
	require.False(t, store.HasConditions("BTCUSDT"))
}
