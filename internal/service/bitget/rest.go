package bitget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	"PriceWatch/internal/service/cache"
	apphttp "PriceWatch/pkg/http"
	applogger "PriceWatch/pkg/logger"

	"github.com/shopspring/decimal"
)

const tickersPath = "/api/v2/spot/market/tickers"

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type ticker struct {
	Symbol string `json:"symbol"`
	InstID string `json:"instId"`
	LastPr string `json:"lastPr"`
	Ts     string `json:"ts"`
}

func (t ticker) id() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.InstID
}

// RESTFeed polls the spot tickers endpoint.
type RESTFeed struct {
	baseURL  string
	client   *apphttp.Client
	cache    cache.BytesCache
	cacheTTL time.Duration
	l        *applogger.Logger
}

// RESTOption configures RESTFeed.
type RESTOption func(*RESTFeed)

// WithClient replaces the default HTTP client.
func WithClient(c *apphttp.Client) RESTOption {
	return func(f *RESTFeed) { f.client = c }
}

// WithResponseCache caches successful ticker bodies for ttl.
func WithResponseCache(c cache.BytesCache, ttl time.Duration) RESTOption {
	return func(f *RESTFeed) {
		f.cache = c
		f.cacheTTL = ttl
	}
}

func NewRESTFeed(baseURL string, l *applogger.Logger, opts ...RESTOption) *RESTFeed {
	f := &RESTFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  apphttp.NewClient(apphttp.WithTimeout(10 * time.Second)),
		l:       l,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func cacheKey(symbol string) string { return "bitget:tickers:" + symbol }

// Fetch returns the last traded price for symbol.
func (f *RESTFeed) Fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if body, ok := f.cached(ctx, symbol); ok {
		if p, err := parseTickers(symbol, body); err == nil {
			return p, nil
		}
	}

	var body []byte
	err := f.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method:      apphttp.MethodGet,
		URL:         f.baseURL + tickersPath,
		Headers:     map[string]string{"Accept": "application/json"},
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &body)
	if err != nil {
		return decimal.Zero, classify(symbol, err)
	}

	price, err := parseTickers(symbol, body)
	if err != nil {
		return decimal.Zero, err
	}

	if f.cache != nil && f.cacheTTL > 0 {
		if err := f.cache.SetBytes(ctx, cacheKey(symbol), body, f.cacheTTL); err != nil {
			f.l.Warn("bitget cache set failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	return price, nil
}

func (f *RESTFeed) cached(ctx context.Context, symbol string) ([]byte, bool) {
	if f.cache == nil || f.cacheTTL <= 0 {
		return nil, false
	}
	b, ok, err := f.cache.GetBytes(ctx, cacheKey(symbol))
	if err != nil {
		f.l.Warn("bitget cache get failed", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, false
	}
	return b, ok
}

// classify maps transport and status errors to the feed error classes.
// 4xx other than 429 means the exchange rejected the symbol.
func classify(symbol string, err error) error {
	var se *apphttp.StatusError
	if errors.As(err, &se) && !se.Temporary() {
		return models.UpstreamPermanentFailure(symbol, fmt.Errorf("bitget status %d: %s", se.Code, se.Body))
	}
	return models.UpstreamFetchFailed(symbol, err)
}

func parseTickers(symbol string, body []byte) (decimal.Decimal, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return decimal.Zero, models.UpstreamFetchFailed(symbol, fmt.Errorf("decode envelope: %w", err))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return decimal.Zero, models.UpstreamFetchFailed(symbol, fmt.Errorf("unexpected response format: code=%s msg=%s", env.Code, env.Msg))
	}

	var tickers []ticker
	if err := json.Unmarshal(env.Data, &tickers); err != nil {
		return decimal.Zero, models.UpstreamFetchFailed(symbol, fmt.Errorf("decode tickers: %w", err))
	}
	for _, t := range tickers {
		if t.id() != symbol {
			continue
		}
		return parsePrice(symbol, t.LastPr)
	}
	return decimal.Zero, models.UpstreamPermanentFailure(symbol, errors.New("symbol not listed"))
}

func parsePrice(symbol, raw string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, models.UpstreamFetchFailed(symbol, fmt.Errorf("parse price %q: %w", raw, err))
	}
	if !p.IsPositive() {
		return decimal.Zero, models.UpstreamFetchFailed(symbol, fmt.Errorf("non-positive price %s", raw))
	}
	return p, nil
}

var _ domrepo.PriceFeed = (*RESTFeed)(nil)
