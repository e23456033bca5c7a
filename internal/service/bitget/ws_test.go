package bitget

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"PriceWatch/internal/domain/models"
	applogger "PriceWatch/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeExchange answers ticker subscriptions with a fixed price per symbol
// and rejects anything it does not list.
type fakeExchange struct {
	mu     sync.Mutex
	prices map[string]string
	conns  []*websocket.Conn
	ops    []string
}

func (x *fakeExchange) seen(op string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, o := range x.ops {
		if o == op {
			return true
		}
	}
	return false
}

func (x *fakeExchange) serve(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		x.mu.Lock()
		x.conns = append(x.conns, conn)
		x.mu.Unlock()
		defer conn.Close()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(b) == "ping" {
				_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
				continue
			}
			var req wsRequest
			if err := json.Unmarshal(b, &req); err != nil {
				continue
			}
			x.mu.Lock()
			for _, arg := range req.Args {
				x.ops = append(x.ops, req.Op+":"+arg.InstID)
			}
			x.mu.Unlock()
			if req.Op != "subscribe" {
				continue
			}
			for _, arg := range req.Args {
				x.mu.Lock()
				price, ok := x.prices[arg.InstID]
				x.mu.Unlock()
				if !ok {
					_ = conn.WriteJSON(wsPush{Event: "error", Code: 30001, Msg: "instId:" + arg.InstID + " doesn't exist", Arg: arg})
					continue
				}
				_ = conn.WriteJSON(wsPush{Action: "snapshot", Arg: arg, Data: []ticker{{InstID: arg.InstID, LastPr: price}}})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (x *fakeExchange) dropAll() {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, c := range x.conns {
		_ = c.Close()
	}
	x.conns = nil
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSFeedSubscribesLazily(t *testing.T) {
	x := &fakeExchange{prices: map[string]string{"BTCUSDT": "50200.5"}}
	srv := x.serve(t)
	feed := NewWSFeed(wsURL(srv), applogger.Nop(), WithPingInterval(10*time.Millisecond))
	t.Cleanup(func() { _ = feed.Close() })
	ctx := context.Background()

	_, err := feed.Fetch(ctx, "BTCUSDT")
	if err != nil {
		require.ErrorIs(t, err, models.ErrUpstreamFetch)
	}

	require.Eventually(t, func() bool {
		p, err := feed.Fetch(ctx, "BTCUSDT")
		return err == nil && p.String() == "50200.5"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWSFeedRejectedSymbolIsPermanentOnce(t *testing.T) {
	x := &fakeExchange{prices: map[string]string{}}
	srv := x.serve(t)
	feed := NewWSFeed(wsURL(srv), applogger.Nop(), WithPingInterval(0))
	t.Cleanup(func() { _ = feed.Close() })
	ctx := context.Background()

	var lastErr error
	require.Eventually(t, func() bool {
		_, lastErr = feed.Fetch(ctx, "NOPEUSDT")
		return models.IsPermanent(lastErr)
	}, 2*time.Second, 5*time.Millisecond)

	_, err := feed.Fetch(ctx, "NOPEUSDT")
	require.ErrorIs(t, err, models.ErrUpstreamFetch)
}

func TestWSFeedStaleQuote(t *testing.T) {
	x := &fakeExchange{prices: map[string]string{"ETHUSDT": "2500"}}
	srv := x.serve(t)

	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	feed := NewWSFeed(wsURL(srv), applogger.Nop(), WithStaleAfter(30*time.Second), WithPingInterval(0), WithWSClock(clock))
	t.Cleanup(func() { _ = feed.Close() })
	ctx := context.Background()

	require.Eventually(t, func() bool {
		_, err := feed.Fetch(ctx, "ETHUSDT")
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()

	_, err := feed.Fetch(ctx, "ETHUSDT")
	require.ErrorIs(t, err, models.ErrUpstreamFetch)
	require.Contains(t, err.Error(), "stale")
}

func TestWSFeedReconnectsAndResubscribes(t *testing.T) {
	x := &fakeExchange{prices: map[string]string{"SOLUSDT": "150"}}
	srv := x.serve(t)
	feed := NewWSFeed(wsURL(srv), applogger.Nop(), WithPingInterval(0))
	t.Cleanup(func() { _ = feed.Close() })
	ctx := context.Background()

	require.Eventually(t, func() bool {
		_, err := feed.Fetch(ctx, "SOLUSDT")
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	x.mu.Lock()
	x.prices["SOLUSDT"] = "151"
	x.mu.Unlock()
	x.dropAll()

	require.Eventually(t, func() bool {
		p, err := feed.Fetch(ctx, "SOLUSDT")
		return err == nil && p.String() == "151"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWSFeedUnsubscribe(t *testing.T) {
	x := &fakeExchange{prices: map[string]string{"BTCUSDT": "50000"}}
	srv := x.serve(t)
	feed := NewWSFeed(wsURL(srv), applogger.Nop(), WithPingInterval(0))
	t.Cleanup(func() { _ = feed.Close() })
	ctx := context.Background()

	require.Eventually(t, func() bool {
		_, err := feed.Fetch(ctx, "BTCUSDT")
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, feed.Unsubscribe("BTCUSDT"))
	require.Eventually(t, func() bool { return x.seen("unsubscribe:BTCUSDT") }, 2*time.Second, 5*time.Millisecond)

	feed.mu.Lock()
	_, subscribed := feed.subs["BTCUSDT"]
	_, quoted := feed.latest["BTCUSDT"]
	feed.mu.Unlock()
	require.False(t, subscribed)
	require.False(t, quoted)

	// unknown symbols are a no-op
	require.NoError(t, feed.Unsubscribe("ETHUSDT"))
}

func TestWSFeedDialDoesNotBlockQuotes(t *testing.T) {
	// accepts TCP but never answers the websocket handshake
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	feed := NewWSFeed("ws://"+ln.Addr().String(), applogger.Nop(), WithPingInterval(0))
	feed.dialer.HandshakeTimeout = 1500 * time.Millisecond
	t.Cleanup(func() { _ = feed.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	fetched := make(chan error, 1)
	go func() {
		_, err := feed.Fetch(ctx, "BTCUSDT")
		fetched <- err
	}()

	var held net.Conn
	select {
	case held = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("dial never reached the listener")
	}
	t.Cleanup(func() { _ = held.Close() })

	handled := make(chan struct{})
	go func() {
		feed.handle([]byte(`{"action":"snapshot","arg":{"instType":"SPOT","channel":"ticker","instId":"ETHUSDT"},"data":[{"instId":"ETHUSDT","lastPr":"2500"}]}`))
		_ = feed.Unsubscribe("ETHUSDT")
		close(handled)
	}()
	select {
	case <-handled:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("quote handling blocked behind the dial")
	}

	cancel()
	select {
	case err := <-fetched:
		require.ErrorIs(t, err, models.ErrUpstreamFetch)
	case <-time.After(3 * time.Second):
		t.Fatal("fetch did not return after cancel")
	}
}
