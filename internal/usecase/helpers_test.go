package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	"PriceWatch/internal/repository"
	"PriceWatch/pkg/cache"
	"PriceWatch/pkg/logger"
	"PriceWatch/pkg/metrics"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// step is one scripted feed result.
type step struct {
	price string
	err   error
}

// scriptFeed replays a script per symbol and repeats the last step once it runs out.
type scriptFeed struct {
	mu      sync.Mutex
	scripts map[string][]step
	calls   map[string]int
}

func newScriptFeed() *scriptFeed {
	return &scriptFeed{scripts: make(map[string][]step), calls: make(map[string]int)}
}

func (f *scriptFeed) prices(symbol string, prices ...string) *scriptFeed {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range prices {
		f.scripts[symbol] = append(f.scripts[symbol], step{price: p})
	}
	return f
}

func (f *scriptFeed) fail(symbol string, err error) *scriptFeed {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[symbol] = append(f.scripts[symbol], step{err: err})
	return f
}

func (f *scriptFeed) Fetch(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	script := f.scripts[symbol]
	i := f.calls[symbol]
	f.calls[symbol]++
	if len(script) == 0 {
		return decimal.Zero, models.UpstreamPermanentFailure(symbol, errors.New("unknown symbol"))
	}
	if i >= len(script) {
		i = len(script) - 1
	}
	if script[i].err != nil {
		return decimal.Zero, script[i].err
	}
	return decimal.RequireFromString(script[i].price), nil
}

func (f *scriptFeed) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return n.err
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []*models.TriggerEvent
}

func (r *recordingEvents) Enqueue(ev *models.TriggerEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recordingEvents) all() []*models.TriggerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.TriggerEvent(nil), r.events...)
}

type harness struct {
	clock      *fakeClock
	feed       *scriptFeed
	notifier   *recordingNotifier
	events     *recordingEvents
	store      *ConditionStore
	cooldown   *CooldownGuard
	dispatcher *Dispatcher
	supervisor *StreamSupervisor
	engine     *AlertEngine
}

func newHarness(t *testing.T, feed *scriptFeed) *harness {
	t.Helper()
	return newHarnessWithFeed(t, feed, feed)
}

// newHarnessWithFeed runs the supervisor on live, a wrapper around script.
func newHarnessWithFeed(t *testing.T, script *scriptFeed, live domrepo.PriceFeed) *harness {
	t.Helper()
	log := logger.Nop()
	h := &harness{
		clock:    newFakeClock(),
		feed:     script,
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
	}

	mc := cache.NewMemoryCache(cache.WithMemoryClock(h.clock.Now), cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mc.Close() })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h.store = NewConditionStore(repository.NewMemoryConditions(), log, WithStoreClock(h.clock.Now))
	h.cooldown = NewCooldownGuard(mc, time.Minute)
	h.dispatcher = NewDispatcher(h.cooldown, h.notifier, h.store, node, metrics.Nop{}, log, WithEventPublisher(h.events))
	h.supervisor = NewStreamSupervisor(SupervisorConfig{
		Worker: WorkerConfig{
			Interval:     2 * time.Millisecond,
			MaxBackoff:   8 * time.Millisecond,
			MaxFailures:  5,
			FetchTimeout: time.Second,
		},
		ReconcileInterval: time.Hour,
		StopGrace:         time.Second,
	}, h.store, live, h.dispatcher, metrics.Nop{}, log, WithSupervisorClock(h.clock.Now))
	h.engine = NewAlertEngine(h.store, h.supervisor, h.cooldown, log, WithEngineClock(h.clock.Now))

	t.Cleanup(func() { h.supervisor.Stop(context.Background()) })
	return h
}

func (h *harness) create(t *testing.T, symbol string, kind models.Kind, threshold string, oneShot bool) *models.Condition {
	t.Helper()
	c, err := h.engine.CreateAlert(context.Background(), models.CreateConditionInput{
		Owner:     "tester",
		Symbol:    symbol,
		Kind:      kind,
		Threshold: decimal.RequireFromString(threshold),
		OneShot:   oneShot,
	})
	require.NoError(t, err)
	return c
}

func (h *harness) streamState(symbol string) (models.StreamState, bool) {
	st, ok := h.supervisor.Status().Streams[symbol]
	return st, ok
}

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

// releasingFeed records the symbols the supervisor lets go of.
type releasingFeed struct {
	*scriptFeed
	mu       sync.Mutex
	released []string
}

func (f *releasingFeed) Unsubscribe(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, symbol)
	return nil
}

func (f *releasingFeed) releasedSymbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

// gatedFeed holds every Fetch until open is closed, then answers with price.
type gatedFeed struct {
	price   string
	entered chan struct{}
	open    chan struct{}

	mu        sync.Mutex
	completed int
}

func newGatedFeed(price string) *gatedFeed {
	return &gatedFeed{price: price, entered: make(chan struct{}, 16), open: make(chan struct{})}
}

func (f *gatedFeed) Fetch(ctx context.Context, _ string) (decimal.Decimal, error) {
	select {
	case f.entered <- struct{}{}:
	default:
	}
	select {
	case <-f.open:
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
	f.mu.Lock()
	f.completed++
	f.mu.Unlock()
	return decimal.RequireFromString(f.price), nil
}

func (f *gatedFeed) completedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}
