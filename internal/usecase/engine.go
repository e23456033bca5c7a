package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	"PriceWatch/internal/domain/service"
	"PriceWatch/pkg/logger"
)

// AlertEngine is the facade used by routes and command handlers.
type AlertEngine struct {
	store      *ConditionStore
	supervisor *StreamSupervisor
	cooldown   *CooldownGuard
	history    domrepo.HistoryStore
	interval   time.Duration
	log        *logger.Logger
	now        func() time.Time
}

type EngineOption func(*AlertEngine)

// WithHistory enables trigger history queries.
func WithHistory(h domrepo.HistoryStore) EngineOption {
	return func(e *AlertEngine) { e.history = h }
}

// WithEngineClock replaces time.Now for report timestamps.
func WithEngineClock(fn func() time.Time) EngineOption {
	return func(e *AlertEngine) {
		if fn != nil {
			e.now = fn
		}
	}
}

func NewAlertEngine(store *ConditionStore, supervisor *StreamSupervisor, cooldown *CooldownGuard, log *logger.Logger, opts ...EngineOption) *AlertEngine {
	e := &AlertEngine{
		store:      store,
		supervisor: supervisor,
		cooldown:   cooldown,
		interval:   supervisor.cfg.Worker.Interval,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load restores persisted conditions.
func (e *AlertEngine) Load(ctx context.Context) error {
	return e.store.Load(ctx)
}

// CreateAlert validates and stores a condition, then reconciles streams.
func (e *AlertEngine) CreateAlert(ctx context.Context, in models.CreateConditionInput) (*models.Condition, error) {
	c, err := e.store.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	e.log.Info("alert created", logger.String("id", c.ID), logger.String("symbol", c.Symbol),
		logger.String("kind", string(c.Kind)), logger.Decimal("threshold", c.Threshold), logger.Bool("one_shot", c.OneShot))
	e.supervisor.Reconcile(ctx)
	return c, nil
}

// DeleteAlert removes a condition. It reports false for an unknown id.
func (e *AlertEngine) DeleteAlert(ctx context.Context, id string) (bool, error) {
	ok, err := e.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		e.log.Info("alert deleted", logger.String("id", id))
		e.supervisor.Reconcile(ctx)
	}
	return ok, nil
}

func (e *AlertEngine) GetAlert(id string) (models.Condition, error) {
	return e.store.Get(id)
}

func (e *AlertEngine) ListAlerts(owner string) []models.Condition {
	return e.store.List(owner)
}

func (e *AlertEngine) IsMonitoring() bool {
	return e.supervisor.Running()
}

func (e *AlertEngine) GetStatus() models.EngineStatus {
	st := e.supervisor.Status()
	return models.EngineStatus{
		MonitoringActive: e.supervisor.Running(),
		TotalAlerts:      e.store.Stats().Total,
		ActiveStreams:    st.ActiveStreams,
		StreamingSymbols: st.Symbols,
		CheckInterval:    e.interval,
		CooldownWindow:   e.cooldown.Window(),
	}
}

// StartMonitoring turns streams on. It reports false if monitoring was already active.
func (e *AlertEngine) StartMonitoring(ctx context.Context) (bool, error) {
	changed := e.supervisor.Start(ctx)
	if changed {
		e.log.Info("monitoring started", logger.Int("alerts", e.store.Stats().Total))
	}
	return changed, nil
}

// StopMonitoring drains all streams. It reports false if monitoring was already off.
func (e *AlertEngine) StopMonitoring(ctx context.Context) (bool, error) {
	changed := e.supervisor.Stop(ctx)
	if changed {
		e.log.Info("monitoring stopped")
	}
	return changed, nil
}

// StartSymbol starts one stream by hand. Monitoring must be active.
func (e *AlertEngine) StartSymbol(ctx context.Context, symbol string) (bool, error) {
	sym, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return false, err
	}
	if !e.supervisor.Running() {
		return false, models.ErrMonitoringInactive
	}
	return e.supervisor.StartSymbol(sym), nil
}

// StopSymbol stops one stream by hand. Monitoring must be active.
func (e *AlertEngine) StopSymbol(ctx context.Context, symbol string) (bool, error) {
	sym, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return false, err
	}
	if !e.supervisor.Running() {
		return false, models.ErrMonitoringInactive
	}
	return e.supervisor.StopSymbol(ctx, sym), nil
}

// Streams lists every symbol that has conditions or a known stream.
func (e *AlertEngine) Streams() []models.StreamSummary {
	stats := e.store.Stats()
	st := e.supervisor.Status()

	symbols := make(map[string]struct{}, len(stats.BySymbol)+len(st.Streams))
	for sym := range stats.BySymbol {
		symbols[sym] = struct{}{}
	}
	for sym := range st.Streams {
		symbols[sym] = struct{}{}
	}

	out := make([]models.StreamSummary, 0, len(symbols))
	for sym := range symbols {
		row := models.StreamSummary{Symbol: sym, AlertsCount: stats.BySymbol[sym]}
		if state, ok := st.Streams[sym]; ok {
			row.Status = state.Status
			row.Active = state.Status == models.StreamActive || state.Status == models.StreamStarting
			row.LastError = state.LastError
			if state.LastSample != nil {
				price, at := state.LastSample.Price, state.LastSample.ObservedAt
				row.LastPrice = &price
				row.LastUpdate = &at
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Performance is the extended observability view.
func (e *AlertEngine) Performance(ctx context.Context) models.Performance {
	stats := e.store.Stats()
	st := e.supervisor.Status()
	p := models.Performance{
		Timestamp:        e.now().UTC(),
		MonitoringActive: e.supervisor.Running(),
		CheckInterval:    e.interval,
		TotalAlerts:      stats.Total,
		AlertsBySymbol:   stats.BySymbol,
		ActiveStreams:    st.ActiveStreams,
		StreamSymbols:    st.Symbols,
		PriceCache:       make(map[string]models.Sample, len(st.Streams)),
		CooldownWindow:   e.cooldown.Window(),
	}
	for sym, state := range st.Streams {
		if state.LastSample != nil {
			p.PriceCache[sym] = *state.LastSample
		}
	}
	n, err := e.cooldown.Active(ctx)
	if err != nil {
		e.log.Warn("count cooldowns", logger.Error(err))
	}
	p.ActiveCooldowns = n
	return p
}

// History lists past triggers for symbol in [from, to].
func (e *AlertEngine) History(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.TriggerEvent, error) {
	if e.history == nil {
		return nil, models.ErrHistoryUnavailable
	}
	sym, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = e.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from must be <= to", models.ErrInvalidRange)
	}
	events, err := e.history.QueryTriggers(ctx, sym, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return events, nil
}

var _ service.AlertService = (*AlertEngine)(nil)
