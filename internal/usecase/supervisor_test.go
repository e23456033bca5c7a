package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"PriceWatch/internal/domain/models"

	"github.com/stretchr/testify/require"
)

func TestSupervisorParksPermanentlyFailedSymbol(t *testing.T) {
	h := newHarness(t, newScriptFeed())
	ctx := context.Background()
	// no script: the feed reports an unknown symbol
	h.create(t, "NOPEUSDT", models.KindPriceAbove, "1", false)

	_, err := h.engine.StartMonitoring(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, ok := h.streamState("NOPEUSDT")
		return ok && st.Status == models.StreamStopped && st.Permanent
	}, waitFor, tick)

	for i := 0; i < 10; i++ {
		h.supervisor.Reconcile(ctx)
	}
	require.Equal(t, 1, h.feed.callCount("NOPEUSDT"))
	st, ok := h.streamState("NOPEUSDT")
	require.True(t, ok)
	require.Contains(t, st.LastError, "unknown symbol")

	// a changed condition set earns the symbol another attempt
	h.create(t, "NOPEUSDT", models.KindPriceBelow, "1", false)
	require.Eventually(t, func() bool {
		st, ok := h.streamState("NOPEUSDT")
		return ok && st.Status == models.StreamStopped && h.feed.callCount("NOPEUSDT") == 2
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		h.supervisor.Reconcile(ctx)
		return h.feed.callCount("NOPEUSDT") == 2
	}, waitFor, tick)

	// as does an explicit start
	require.Eventually(t, func() bool { return h.supervisor.StartSymbol("NOPEUSDT") }, waitFor, tick)
	require.Eventually(t, func() bool { return h.feed.callCount("NOPEUSDT") == 3 }, waitFor, tick)
}

func TestSupervisorRestartsAfterRetryableStreak(t *testing.T) {
	feed := newScriptFeed().fail("SOLUSDT", models.UpstreamFetchFailed("SOLUSDT", errors.New("http 503")))
	h := newHarness(t, feed)
	ctx := context.Background()
	h.create(t, "SOLUSDT", models.KindPriceBelow, "100", false)

	_, err := h.engine.StartMonitoring(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, ok := h.streamState("SOLUSDT")
		return ok && st.Status == models.StreamStopped
	}, waitFor, tick)
	st, _ := h.streamState("SOLUSDT")
	require.False(t, st.Permanent)

	h.supervisor.Reconcile(ctx)
	require.Eventually(t, func() bool { return feed.callCount("SOLUSDT") > 5 }, waitFor, tick)
}

func TestSupervisorReleasesFeedSymbols(t *testing.T) {
	script := newScriptFeed().prices("BTCUSDT", "10").prices("ETHUSDT", "10")
	feed := &releasingFeed{scriptFeed: script}
	h := newHarnessWithFeed(t, script, feed)
	ctx := context.Background()
	btc := h.create(t, "BTCUSDT", models.KindPriceAbove, "50000", false)
	h.create(t, "ETHUSDT", models.KindPriceAbove, "50000", false)

	_, err := h.engine.StartMonitoring(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return script.callCount("BTCUSDT") > 0 && script.callCount("ETHUSDT") > 0
	}, waitFor, tick)

	stopped, err := h.engine.StopSymbol(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.True(t, stopped)
	require.Equal(t, []string{"ETHUSDT"}, feed.releasedSymbols())

	deleted, err := h.engine.DeleteAlert(ctx, btc.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	require.Equal(t, []string{"ETHUSDT", "BTCUSDT"}, feed.releasedSymbols())

	h.supervisor.Reconcile(ctx)
	require.Equal(t, 1, h.engine.GetStatus().ActiveStreams)
	_, err = h.engine.StopMonitoring(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ETHUSDT", "BTCUSDT", "ETHUSDT"}, feed.releasedSymbols())
}

func TestStopSymbolDiscardsInFlightFetch(t *testing.T) {
	gate := newGatedFeed("60000")
	h := newHarnessWithFeed(t, newScriptFeed(), gate)
	ctx := context.Background()
	h.create(t, "BTCUSDT", models.KindPriceAbove, "50000", false)

	_, err := h.engine.StartMonitoring(ctx)
	require.NoError(t, err)
	select {
	case <-gate.entered:
	case <-time.After(waitFor):
		t.Fatal("fetch never started")
	}

	done := make(chan bool, 1)
	go func() {
		stopped, _ := h.engine.StopSymbol(ctx, "BTCUSDT")
		done <- stopped
	}()
	require.Eventually(t, func() bool {
		_, ok := h.streamState("BTCUSDT")
		return !ok
	}, waitFor, tick)

	// the fetch finishes with a price above the threshold after the stream began stopping
	close(gate.open)
	select {
	case stopped := <-done:
		require.True(t, stopped)
	case <-time.After(waitFor):
		t.Fatal("stop did not return")
	}
	require.Equal(t, 1, gate.completedCount())
	require.Empty(t, h.notifier.messages())
	require.Empty(t, h.events.all())
}

func TestEngineAboveAndBelowShareOneStream(t *testing.T) {
	feed := newScriptFeed().prices("BTCUSDT", "45000", "50500", "39000")
	h := newHarness(t, feed)
	ctx := context.Background()
	above := h.create(t, "BTCUSDT", models.KindPriceAbove, "50000", false)
	below := h.create(t, "BTCUSDT", models.KindPriceBelow, "40000", false)

	_, err := h.engine.StartMonitoring(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.notifier.messages()) == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return feed.callCount("BTCUSDT") >= 6 }, waitFor, tick)

	status := h.engine.GetStatus()
	require.Equal(t, 1, status.ActiveStreams)
	require.Equal(t, []string{"BTCUSDT"}, status.StreamingSymbols)

	msgs := h.notifier.messages()
	require.Len(t, msgs, 2)
	require.True(t, strings.Contains(msgs[0], "ABOVE TARGET"), msgs[0])
	require.True(t, strings.Contains(msgs[1], "BELOW TARGET"), msgs[1])

	events := h.events.all()
	require.Len(t, events, 2)
	require.Equal(t, above.ID, events[0].ConditionID)
	require.Equal(t, below.ID, events[1].ConditionID)
}
