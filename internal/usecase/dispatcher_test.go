package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceWatch/internal/domain/models"

	"github.com/stretchr/testify/require"
)

func TestDispatcherOneShotRemovedOnFailedDelivery(t *testing.T) {
	h := newHarness(t, newScriptFeed())
	h.notifier.err = errors.New("telegram: 502")
	c := h.create(t, "BTCUSDT", models.KindPriceAbove, "50000", true)

	sample := models.Sample{Symbol: "BTCUSDT", Price: dec("50100"), ObservedAt: h.clock.Now()}
	removed := h.dispatcher.Fire(context.Background(), *c, sample, decPtr("49900"))
	require.True(t, removed)
	require.False(t, h.store.Exists(c.ID))
	require.Len(t, h.notifier.messages(), 1)

	events := h.events.all()
	require.Len(t, events, 1)
	require.False(t, events[0].Delivered)
	require.Equal(t, "telegram: 502", events[0].DeliveryError)
	require.Equal(t, c.ID, events[0].ConditionID)
	require.True(t, events[0].Price.Equal(dec("50100")))
	require.NotNil(t, events[0].PreviousPrice)
	require.NotZero(t, events[0].ID)
}

func TestDispatcherCooldownSharedBySignature(t *testing.T) {
	h := newHarness(t, newScriptFeed())
	ctx := context.Background()
	a := h.create(t, "BTCUSDT", models.KindPriceAbove, "50000", false)
	b := h.create(t, "BTCUSDT", models.KindPriceAbove, "50000.00", false)
	sample := models.Sample{Symbol: "BTCUSDT", Price: dec("50100"), ObservedAt: h.clock.Now()}

	require.False(t, h.dispatcher.Fire(ctx, *a, sample, nil))
	// identical rule registered twice shares one window
	require.False(t, h.dispatcher.Fire(ctx, *b, sample, nil))
	require.Len(t, h.notifier.messages(), 1)

	h.clock.Advance(61 * time.Second)
	require.False(t, h.dispatcher.Fire(ctx, *b, sample, nil))
	require.Len(t, h.notifier.messages(), 2)
	require.True(t, h.store.Exists(a.ID))
	require.True(t, h.store.Exists(b.ID))
}
