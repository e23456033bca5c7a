package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	"PriceWatch/pkg/logger"
)

// SupervisorConfig tunes reconciliation and shutdown.
type SupervisorConfig struct {
	Worker            WorkerConfig
	ReconcileInterval time.Duration
	StopGrace         time.Duration
}

// StreamSupervisor is the sole owner of stream workers: at most one live worker per symbol.
type StreamSupervisor struct {
	cfg     SupervisorConfig
	store   *ConditionStore
	deps    workerDeps
	metrics domrepo.Metrics
	log     *logger.Logger

	mu      sync.Mutex
	running bool
	baseCtx context.Context
	cancel  context.CancelFunc
	workers map[string]*StreamWorker
	// retired keeps the final state of self-stopped workers until a fresh worker replaces them.
	retired map[string]retiredStream
	// unsubscribe releases per-symbol upstream state once a symbol has no worker. Optional.
	unsubscribe func(symbol string) error

	trigger  chan struct{}
	quit     chan struct{}
	loopDone chan struct{}
}

// retiredStream is a self-stopped worker's last state. A permanent failure parks the symbol
// until its condition set changes or it is started explicitly.
type retiredStream struct {
	state      models.StreamState
	conditions string
}

// symbolReleaser is implemented by feeds that hold upstream state per symbol, such as a subscription.
type symbolReleaser interface {
	Unsubscribe(symbol string) error
}

type SupervisorOption func(*StreamSupervisor)

// WithSupervisorClock replaces time.Now for worker timestamps.
func WithSupervisorClock(fn func() time.Time) SupervisorOption {
	return func(s *StreamSupervisor) {
		if fn != nil {
			s.deps.now = fn
		}
	}
}

func NewStreamSupervisor(cfg SupervisorConfig, store *ConditionStore, feed domrepo.PriceFeed, dispatcher *Dispatcher, metrics domrepo.Metrics, log *logger.Logger, opts ...SupervisorOption) *StreamSupervisor {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 10 * time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2 * time.Second
	}
	cfg.Worker = cfg.Worker.withDefaults()
	s := &StreamSupervisor{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		log:     log,
		deps: workerDeps{
			feed:       feed,
			store:      store,
			dispatcher: dispatcher,
			metrics:    metrics,
			log:        log,
			now:        time.Now,
		},
		workers: make(map[string]*StreamWorker),
		retired: make(map[string]retiredStream),
		trigger: make(chan struct{}, 1),
	}
	if r, ok := feed.(symbolReleaser); ok {
		s.unsubscribe = r.Unsubscribe
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start turns the supervisor on and runs a first reconcile. It reports false if already running.
func (s *StreamSupervisor) Start(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	// workers outlive the caller's request context
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.quit = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.loop(s.quit, s.loopDone)
	s.mu.Unlock()

	s.log.Info("stream supervisor started", logger.Duration("reconcile_interval_ms", s.cfg.ReconcileInterval))
	s.Reconcile(ctx)
	return true
}

// Stop drains every worker within the stop grace and turns the supervisor off.
func (s *StreamSupervisor) Stop(ctx context.Context) bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	s.running = false
	close(s.quit)
	loopDone, cancel := s.loopDone, s.cancel
	toStop := make([]*StreamWorker, 0, len(s.workers))
	for sym, w := range s.workers {
		w.Stop()
		toStop = append(toStop, w)
		delete(s.workers, sym)
	}
	s.retired = make(map[string]retiredStream)
	s.mu.Unlock()

	<-loopDone
	s.waitStopped(ctx, toStop)
	// stragglers past the grace period get their in-flight calls cancelled
	cancel()
	s.release(toStop...)
	s.metrics.SetActiveStreams(0)
	s.log.Info("stream supervisor stopped", logger.Int("drained", len(toStop)))
	return true
}

func (s *StreamSupervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerReconcile requests a reconcile pass without blocking.
func (s *StreamSupervisor) TriggerReconcile() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *StreamSupervisor) loop(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			s.Reconcile(context.Background())
		case <-s.trigger:
			s.Reconcile(context.Background())
		}
	}
}

// Reconcile starts workers for symbols that gained conditions and stops workers for symbols that lost them.
// It is a no-op while the supervisor is off.
func (s *StreamSupervisor) Reconcile(ctx context.Context) {
	needed := make(map[string]struct{})
	for _, sym := range s.store.SymbolsWithConditions() {
		needed[sym] = struct{}{}
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	var started []string
	for sym := range needed {
		if _, ok := s.workers[sym]; ok {
			continue
		}
		if r, ok := s.retired[sym]; ok && r.state.Permanent && r.conditions == s.conditionsKey(sym) {
			continue
		}
		s.startLocked(sym)
		started = append(started, sym)
	}
	var toStop []*StreamWorker
	for sym, w := range s.workers {
		if _, ok := needed[sym]; !ok {
			w.Stop()
			toStop = append(toStop, w)
			delete(s.workers, sym)
		}
	}
	for sym := range s.retired {
		if _, ok := needed[sym]; !ok {
			delete(s.retired, sym)
		}
	}
	active := len(s.workers)
	s.mu.Unlock()

	s.metrics.SetActiveStreams(active)
	if len(started) > 0 || len(toStop) > 0 {
		sort.Strings(started)
		s.log.Debug("reconciled streams", logger.Strings("started", started), logger.Int("stopped", len(toStop)), logger.Int("active", active))
	}
	s.waitStopped(ctx, toStop)
	s.release(toStop...)
}

// StartSymbol starts a worker for symbol, including one parked after a permanent failure.
// Starting a live symbol is a no-op and returns false.
func (s *StreamSupervisor) StartSymbol(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	if _, ok := s.workers[symbol]; ok {
		return false
	}
	s.startLocked(symbol)
	s.metrics.SetActiveStreams(len(s.workers))
	return true
}

// StopSymbol drains the worker for symbol. Stopping an unknown symbol is a no-op and returns false.
// A symbol that still has conditions is picked up again by the next reconcile.
func (s *StreamSupervisor) StopSymbol(ctx context.Context, symbol string) bool {
	s.mu.Lock()
	w, ok := s.workers[symbol]
	if ok {
		w.Stop()
		delete(s.workers, symbol)
	}
	active := len(s.workers)
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.metrics.SetActiveStreams(active)
	s.waitStopped(ctx, []*StreamWorker{w})
	s.release(w)
	return true
}

// Status reports live workers plus the last state of retired ones.
func (s *StreamSupervisor) Status() models.SupervisorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := models.SupervisorStatus{
		Symbols: make([]string, 0, len(s.workers)),
		Streams: make(map[string]models.StreamState, len(s.workers)+len(s.retired)),
	}
	for sym, r := range s.retired {
		st.Streams[sym] = r.state
	}
	for sym, w := range s.workers {
		state := w.State()
		st.Streams[sym] = state
		if state.Status == models.StreamActive || state.Status == models.StreamStarting {
			st.ActiveStreams++
			st.Symbols = append(st.Symbols, sym)
		}
	}
	sort.Strings(st.Symbols)
	return st
}

func (s *StreamSupervisor) startLocked(symbol string) {
	delete(s.retired, symbol)
	w := newStreamWorker(symbol, s.cfg.Worker, s.deps, s.onWorkerExit, s.TriggerReconcile)
	s.workers[symbol] = w
	w.Start(s.baseCtx)
}

// onWorkerExit retires a worker that stopped itself. After a retryable failure streak the next
// reconcile starts a fresh one; after a permanent failure the symbol stays parked.
func (s *StreamSupervisor) onWorkerExit(w *StreamWorker) {
	s.mu.Lock()
	cur, ok := s.workers[w.Symbol()]
	if !ok || cur != w {
		s.mu.Unlock()
		return
	}
	delete(s.workers, w.Symbol())
	state := w.State()
	s.retired[w.Symbol()] = retiredStream{state: state, conditions: s.conditionsKey(w.Symbol())}
	active := len(s.workers)
	s.mu.Unlock()

	s.metrics.SetActiveStreams(active)
	s.metrics.RecordError("stream_self_stop")
	s.log.Warn("stream retired",
		logger.String("symbol", w.Symbol()),
		logger.Bool("permanent", state.Permanent),
		logger.String("last_error", state.LastError))
	s.release(w)
}

// conditionsKey identifies the current condition set of symbol.
func (s *StreamSupervisor) conditionsKey(symbol string) string {
	conds := s.store.ForSymbol(symbol)
	ids := make([]string, len(conds))
	for i, c := range conds {
		ids[i] = c.ID
	}
	return strings.Join(ids, ",")
}

// release drops feed state for symbols that no longer have a live worker.
func (s *StreamSupervisor) release(workers ...*StreamWorker) {
	if s.unsubscribe == nil {
		return
	}
	for _, w := range workers {
		sym := w.Symbol()
		s.mu.Lock()
		_, live := s.workers[sym]
		s.mu.Unlock()
		if live {
			continue
		}
		if err := s.unsubscribe(sym); err != nil {
			s.log.Warn("stream unsubscribe failed", logger.String("symbol", sym), logger.Error(err))
		}
	}
}

// waitStopped waits for workers to reach STOPPED, sharing one grace deadline across all of them.
func (s *StreamSupervisor) waitStopped(ctx context.Context, workers []*StreamWorker) {
	if len(workers) == 0 {
		return
	}
	timer := time.NewTimer(s.cfg.StopGrace)
	defer timer.Stop()
	for _, w := range workers {
		select {
		case <-w.Done():
		case <-timer.C:
			s.log.Warn("stream did not drain within grace", logger.String("symbol", w.Symbol()), logger.Duration("grace_ms", s.cfg.StopGrace))
			return
		case <-ctx.Done():
			return
		}
	}
}
