package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	"PriceWatch/pkg/logger"

	"github.com/shopspring/decimal"
)

// WorkerConfig tunes a stream worker's polling loop.
type WorkerConfig struct {
	Interval     time.Duration
	MaxBackoff   time.Duration
	MaxFailures  int
	FetchTimeout time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.MaxBackoff < c.Interval {
		c.MaxBackoff = 60 * time.Second
		if c.MaxBackoff < c.Interval {
			c.MaxBackoff = c.Interval
		}
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	return c
}

// backoff returns interval*2^failures capped at max.
func backoff(interval, max time.Duration, failures int) time.Duration {
	d := interval
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}

// StreamWorker polls one symbol and evaluates every condition on it.
// States move STARTING -> ACTIVE -> STOPPING -> STOPPED; a stopped worker is never restarted.
type StreamWorker struct {
	symbol     string
	cfg        WorkerConfig
	feed       domrepo.PriceFeed
	store      *ConditionStore
	dispatcher *Dispatcher
	metrics    domrepo.Metrics
	log        *logger.Logger
	now        func() time.Time

	// onExit runs once on the worker goroutine after STOPPED.
	onExit func(w *StreamWorker)
	// onRemoved asks the supervisor for a reconcile after a one-shot removal. Must not block.
	onRemoved func()

	mu    sync.Mutex
	state models.StreamState

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newStreamWorker(symbol string, cfg WorkerConfig, deps workerDeps, onExit func(*StreamWorker), onRemoved func()) *StreamWorker {
	cfg = cfg.withDefaults()
	now := deps.now
	if now == nil {
		now = time.Now
	}
	return &StreamWorker{
		symbol:     symbol,
		cfg:        cfg,
		feed:       deps.feed,
		store:      deps.store,
		dispatcher: deps.dispatcher,
		metrics:    deps.metrics,
		log:        deps.log.With(logger.String("symbol", symbol)),
		now:        now,
		onExit:     onExit,
		onRemoved:  onRemoved,
		state: models.StreamState{
			Symbol:    symbol,
			Status:    models.StreamStarting,
			Interval:  cfg.Interval,
			StartedAt: now().UTC(),
		},
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// workerDeps are the collaborators shared by every worker of a supervisor.
type workerDeps struct {
	feed       domrepo.PriceFeed
	store      *ConditionStore
	dispatcher *Dispatcher
	metrics    domrepo.Metrics
	log        *logger.Logger
	now        func() time.Time
}

func (w *StreamWorker) Symbol() string { return w.symbol }

// State returns a copy of the worker's current state.
func (w *StreamWorker) State() models.StreamState {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.state
	if st.LastSample != nil {
		s := *st.LastSample
		st.LastSample = &s
	}
	if st.StoppedAt != nil {
		t := *st.StoppedAt
		st.StoppedAt = &t
	}
	return st
}

// Start launches the poll loop. ctx bounds fetches and deliveries, not the loop itself.
func (w *StreamWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop asks the worker to finish its current cycle and exit. It does not wait.
func (w *StreamWorker) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		if w.state.Status == models.StreamStarting || w.state.Status == models.StreamActive {
			w.state.Status = models.StreamStopping
		}
		w.mu.Unlock()
		close(w.stopCh)
	})
}

// Done is closed once the worker reaches STOPPED.
func (w *StreamWorker) Done() <-chan struct{} { return w.done }

func (w *StreamWorker) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *StreamWorker) run(ctx context.Context) {
	defer close(w.done)

	w.mu.Lock()
	if w.state.Status == models.StreamStarting {
		w.state.Status = models.StreamActive
	}
	w.mu.Unlock()
	w.log.Info("stream started", logger.Duration("interval_ms", w.cfg.Interval))

	var prev *decimal.Decimal
	delay := time.Duration(0)
	for {
		if w.stopping() {
			break
		}
		if delay > 0 && !w.sleep(ctx, delay) {
			break
		}
		if w.stopping() {
			break
		}

		price, err := w.fetch(ctx)
		if w.stopping() {
			// late result of an in-flight fetch
			break
		}
		if err != nil {
			failures := w.recordFailure(err)
			w.metrics.RecordPoll(w.symbol, false)
			if permanent := models.IsPermanent(err); permanent || failures >= w.cfg.MaxFailures {
				w.mu.Lock()
				w.state.Permanent = permanent
				w.mu.Unlock()
				w.log.Error("stream giving up", logger.Int("consecutive_failures", failures), logger.Error(err))
				w.Stop()
				break
			}
			delay = backoff(w.cfg.Interval, w.cfg.MaxBackoff, failures)
			w.log.Warn("price fetch failed", logger.Int("consecutive_failures", failures),
				logger.Duration("retry_in_ms", delay), logger.Error(err))
			continue
		}

		sample := models.Sample{Symbol: w.symbol, Price: price, ObservedAt: w.now().UTC()}
		w.recordSample(sample)
		w.metrics.RecordPoll(w.symbol, true)
		f, _ := price.Float64()
		w.metrics.RecordLastPrice(w.symbol, f)

		w.evaluate(ctx, sample, prev)
		p := price
		prev = &p
		delay = w.cfg.Interval
	}

	w.mu.Lock()
	stoppedAt := w.now().UTC()
	w.state.Status = models.StreamStopped
	w.state.StoppedAt = &stoppedAt
	w.mu.Unlock()
	w.log.Info("stream stopped")

	if w.onExit != nil {
		w.onExit(w)
	}
}

// sleep waits d and reports false if the worker was stopped or ctx ended first.
func (w *StreamWorker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *StreamWorker) fetch(ctx context.Context) (decimal.Decimal, error) {
	fctx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()
	start := time.Now()
	price, err := w.feed.Fetch(fctx, w.symbol)
	w.metrics.RecordLatency("feed_fetch", time.Since(start).Seconds())
	if err != nil {
		if !models.IsPermanent(err) {
			err = ensureRetryable(w.symbol, err)
		}
		return decimal.Zero, err
	}
	return price, nil
}

// ensureRetryable classifies an unclassified feed error as retryable.
func ensureRetryable(symbol string, err error) error {
	if errors.Is(err, models.ErrUpstreamFetch) {
		return err
	}
	return models.UpstreamFetchFailed(symbol, err)
}

func (w *StreamWorker) recordFailure(err error) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.ConsecutiveFailures++
	w.state.LastError = err.Error()
	return w.state.ConsecutiveFailures
}

func (w *StreamWorker) recordSample(s models.Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.ConsecutiveFailures = 0
	w.state.LastSample = &s
}

// evaluate runs every condition on the symbol against s, in snapshot order.
func (w *StreamWorker) evaluate(ctx context.Context, s models.Sample, prev *decimal.Decimal) {
	conds := w.store.ForSymbol(w.symbol)
	removed := false
	for _, c := range conds {
		if !Evaluate(c, s.Price, prev) {
			continue
		}
		// deleted since the snapshot
		if !w.store.Exists(c.ID) {
			continue
		}
		if w.dispatcher.Fire(ctx, c, s, prev) {
			removed = true
		}
	}
	if removed && w.onRemoved != nil {
		w.onRemoved()
	}
}
