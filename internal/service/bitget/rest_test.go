package bitget

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"PriceWatch/internal/domain/models"
	"PriceWatch/internal/service/cache"
	applogger "PriceWatch/pkg/logger"

	"github.com/stretchr/testify/require"
)

func tickerServer(t *testing.T, handler func(w http.ResponseWriter, symbol string)) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != tickersPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		handler(w, r.URL.Query().Get("symbol"))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRESTFeedFetch(t *testing.T) {
	srv, _ := tickerServer(t, func(w http.ResponseWriter, symbol string) {
		_, _ = io.WriteString(w, `{"code":"00000","msg":"success","data":[{"symbol":"`+symbol+`","lastPr":"50200.15"}]}`)
	})
	feed := NewRESTFeed(srv.URL+"/", applogger.Nop())

	p, err := feed.Fetch(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, "50200.15", p.String())
}

func TestRESTFeedErrorClasses(t *testing.T) {
	cases := map[string]struct {
		status    int
		body      string
		permanent bool
	}{
		"server error":   {status: http.StatusBadGateway, body: "oops", permanent: false},
		"throttled":      {status: http.StatusTooManyRequests, body: "slow down", permanent: false},
		"unknown symbol": {status: http.StatusBadRequest, body: `{"code":"40034","msg":"Parameter does not exist"}`, permanent: true},
		"empty data":     {status: http.StatusOK, body: `{"code":"00000","data":[]}`, permanent: true},
		"no envelope":    {status: http.StatusOK, body: `{"code":"00000"}`, permanent: false},
		"bad price":      {status: http.StatusOK, body: `{"data":[{"symbol":"XUSDT","lastPr":"n/a"}]}`, permanent: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := tickerServer(t, func(w http.ResponseWriter, _ string) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := NewRESTFeed(srv.URL, applogger.Nop()).Fetch(context.Background(), "XUSDT")
			require.Error(t, err)
			require.Equal(t, tc.permanent, models.IsPermanent(err), "err=%v", err)
			require.ErrorIs(t, err, map[bool]error{true: models.ErrUpstreamPermanent, false: models.ErrUpstreamFetch}[tc.permanent])
		})
	}
}

func TestRESTFeedTransportErrorIsRetryable(t *testing.T) {
	srv, _ := tickerServer(t, func(http.ResponseWriter, string) {})
	url := srv.URL
	srv.Close()

	_, err := NewRESTFeed(url, applogger.Nop()).Fetch(context.Background(), "BTCUSDT")
	require.ErrorIs(t, err, models.ErrUpstreamFetch)
}

func TestRESTFeedCachesResponses(t *testing.T) {
	srv, hits := tickerServer(t, func(w http.ResponseWriter, symbol string) {
		_, _ = io.WriteString(w, `{"data":[{"symbol":"`+symbol+`","lastPr":"1.5"}]}`)
	})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.NewTTLCache().WithClock(func() time.Time { return now })
	feed := NewRESTFeed(srv.URL, applogger.Nop(), WithResponseCache(c, time.Second))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := feed.Fetch(ctx, "ETHUSDT")
		require.NoError(t, err)
		require.Equal(t, "1.5", p.String())
	}
	require.EqualValues(t, 1, atomic.LoadInt32(hits))

	now = now.Add(2 * time.Second)
	_, err := feed.Fetch(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(hits))
}
