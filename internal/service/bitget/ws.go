package bitget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	applogger "PriceWatch/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const writeWait = 5 * time.Second

type wsArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

type wsRequest struct {
	Op   string  `json:"op"`
	Args []wsArg `json:"args"`
}

type wsPush struct {
	Event  string   `json:"event"`
	Code   int      `json:"code"`
	Msg    string   `json:"msg"`
	Action string   `json:"action"`
	Arg    wsArg    `json:"arg"`
	Data   []ticker `json:"data"`
}

type quote struct {
	price decimal.Decimal
	at    time.Time
}

// WSFeed keeps the latest ticker per symbol from the public websocket.
// Symbols are subscribed on first Fetch. A dropped connection is redialed
// on the next Fetch and every known symbol is resubscribed.
type WSFeed struct {
	url          string
	staleAfter   time.Duration
	pingInterval time.Duration
	dialer       *websocket.Dialer
	now          func() time.Time
	l            *applogger.Logger

	dialMu   sync.Mutex
	mu       sync.Mutex
	conn     *websocket.Conn
	subs     map[string]struct{}
	latest   map[string]quote
	rejected map[string]string
	closed   bool
	wg       sync.WaitGroup
}

// WSOption configures WSFeed.
type WSOption func(*WSFeed)

// WithStaleAfter sets how old a quote may be before Fetch reports it as unavailable.
func WithStaleAfter(d time.Duration) WSOption {
	return func(f *WSFeed) { f.staleAfter = d }
}

// WithPingInterval sets the keepalive interval.
func WithPingInterval(d time.Duration) WSOption {
	return func(f *WSFeed) { f.pingInterval = d }
}

// WithWSClock replaces time.Now. Tests only.
func WithWSClock(now func() time.Time) WSOption {
	return func(f *WSFeed) { f.now = now }
}

func NewWSFeed(url string, l *applogger.Logger, opts ...WSOption) *WSFeed {
	f := &WSFeed{
		url:          url,
		staleAfter:   30 * time.Second,
		pingInterval: 25 * time.Second,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		now:          time.Now,
		l:            l,
		subs:         make(map[string]struct{}),
		latest:       make(map[string]quote),
		rejected:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the latest pushed price. A missing or stale quote is retryable.
// A subscription the exchange rejected is reported once as permanent and then forgotten,
// so the next Fetch subscribes again.
func (f *WSFeed) Fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return decimal.Zero, models.UpstreamFetchFailed(symbol, errors.New("feed closed"))
	}
	if msg, ok := f.rejected[symbol]; ok {
		delete(f.rejected, symbol)
		f.mu.Unlock()
		return decimal.Zero, models.UpstreamPermanentFailure(symbol, fmt.Errorf("subscribe rejected: %s", msg))
	}
	connected := f.conn != nil
	f.mu.Unlock()

	if !connected {
		if err := f.connect(ctx); err != nil {
			return decimal.Zero, models.UpstreamFetchFailed(symbol, err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return decimal.Zero, models.UpstreamFetchFailed(symbol, errors.New("connection lost"))
	}
	if _, ok := f.subs[symbol]; !ok {
		if err := f.writeLocked(wsRequest{Op: "subscribe", Args: []wsArg{tickerArg(symbol)}}); err != nil {
			return decimal.Zero, models.UpstreamFetchFailed(symbol, fmt.Errorf("subscribe: %w", err))
		}
		f.subs[symbol] = struct{}{}
		f.l.Debug("bitget ws subscribed", applogger.String("symbol", symbol))
	}

	q, ok := f.latest[symbol]
	if !ok {
		return decimal.Zero, models.UpstreamFetchFailed(symbol, errors.New("no ticker received yet"))
	}
	if age := f.now().Sub(q.at); f.staleAfter > 0 && age > f.staleAfter {
		return decimal.Zero, models.UpstreamFetchFailed(symbol, fmt.Errorf("ticker stale for %s", age.Truncate(time.Second)))
	}
	return q.price, nil
}

// Unsubscribe drops symbol from the live subscription set and forgets its last quote.
func (f *WSFeed) Unsubscribe(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[symbol]; !ok {
		return nil
	}
	delete(f.subs, symbol)
	delete(f.latest, symbol)
	if f.conn == nil {
		return nil
	}
	return f.writeLocked(wsRequest{Op: "unsubscribe", Args: []wsArg{tickerArg(symbol)}})
}

// Close shuts the connection down and waits for the reader to exit.
func (f *WSFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()

	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = conn.Close()
	}
	f.wg.Wait()
	return err
}

func tickerArg(symbol string) wsArg {
	return wsArg{InstType: "SPOT", Channel: "ticker", InstID: symbol}
}

// connect dials without holding mu, so quotes keep flowing to other callers during a redial.
// dialMu lets only one caller dial at a time.
func (f *WSFeed) connect(ctx context.Context) error {
	f.dialMu.Lock()
	defer f.dialMu.Unlock()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("feed closed")
	}
	if f.conn != nil {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("bitget ws connect: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		_ = conn.Close()
		return errors.New("feed closed")
	}
	f.conn = conn
	f.l.Info("bitget ws connected", applogger.String("url", f.url))

	if len(f.subs) > 0 {
		args := make([]wsArg, 0, len(f.subs))
		for s := range f.subs {
			args = append(args, tickerArg(s))
		}
		if err := f.writeLocked(wsRequest{Op: "subscribe", Args: args}); err != nil {
			f.conn = nil
			_ = conn.Close()
			return fmt.Errorf("bitget ws resubscribe: %w", err)
		}
	}

	done := make(chan struct{})
	f.wg.Add(2)
	go f.readLoop(conn, done)
	go f.pingLoop(conn, done)
	return nil
}

func (f *WSFeed) writeLocked(v any) error {
	if err := f.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return f.conn.WriteJSON(v)
}

func (f *WSFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer f.wg.Done()
	if f.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			f.mu.Lock()
			if f.conn == conn {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
			f.mu.Unlock()
		}
	}
}

func (f *WSFeed) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer f.wg.Done()
	defer close(done)
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			closed := f.closed
			if f.conn == conn {
				f.conn = nil
			}
			f.mu.Unlock()
			_ = conn.Close()
			if !closed {
				f.l.Warn("bitget ws read failed", applogger.Error(err))
			}
			return
		}
		if string(b) == "pong" {
			continue
		}
		f.handle(b)
	}
}

func (f *WSFeed) handle(b []byte) {
	var m wsPush
	if err := json.Unmarshal(b, &m); err != nil {
		// ignore frames we do not understand
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if m.Event == "error" {
		if m.Arg.InstID != "" {
			f.rejected[m.Arg.InstID] = m.Msg
			delete(f.subs, m.Arg.InstID)
		}
		f.l.Warn("bitget ws error event",
			applogger.Int("code", m.Code),
			applogger.String("msg", m.Msg),
			applogger.String("symbol", m.Arg.InstID),
		)
		return
	}
	if m.Arg.Channel != "ticker" {
		return
	}
	now := f.now()
	for _, t := range m.Data {
		sym := t.id()
		if sym == "" {
			sym = m.Arg.InstID
		}
		p, err := decimal.NewFromString(t.LastPr)
		if err != nil || !p.IsPositive() {
			continue
		}
		f.latest[sym] = quote{price: p, at: now}
	}
}

var _ domrepo.PriceFeed = (*WSFeed)(nil)
