package usecase

import (
	"context"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	"PriceWatch/pkg/logger"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// EventPublisher accepts trigger events without blocking the caller.
type EventPublisher interface {
	Enqueue(ev *models.TriggerEvent) bool
}

// Dispatcher runs the firing path of a matched condition:
// cooldown check, render, one delivery attempt, one-shot removal, event emission.
type Dispatcher struct {
	cooldown *CooldownGuard
	sink     domrepo.NotificationSink
	store    *ConditionStore
	events   EventPublisher
	ids      *snowflake.Node
	metrics  domrepo.Metrics
	log      *logger.Logger
	timeout  time.Duration
}

type DispatcherOption func(*Dispatcher)

// WithEventPublisher sets where trigger events go. Without one, events are only logged.
func WithEventPublisher(p EventPublisher) DispatcherOption {
	return func(d *Dispatcher) { d.events = p }
}

// WithSendTimeout bounds one delivery attempt.
func WithSendTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

func NewDispatcher(cooldown *CooldownGuard, sink domrepo.NotificationSink, store *ConditionStore, ids *snowflake.Node, metrics domrepo.Metrics, log *logger.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		cooldown: cooldown,
		sink:     sink,
		store:    store,
		ids:      ids,
		metrics:  metrics,
		log:      log,
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fire handles a condition that matched sample. It reports whether a one-shot condition was removed.
func (d *Dispatcher) Fire(ctx context.Context, c models.Condition, s models.Sample, prev *decimal.Decimal) bool {
	ok, err := d.cooldown.ShouldFire(ctx, c.Symbol, c.Signature())
	if err != nil {
		d.metrics.RecordError("cooldown")
		d.log.Error("cooldown check failed, not firing", logger.String("symbol", c.Symbol), logger.String("condition_id", c.ID), logger.Error(err))
		return false
	}
	if !ok {
		d.metrics.RecordCooldownSuppressed(c.Symbol)
		d.log.Debug("trigger suppressed by cooldown", logger.String("symbol", c.Symbol), logger.String("signature", c.Signature()))
		return false
	}
	d.metrics.RecordTrigger(c.Symbol, c.Kind)

	text := RenderMessage(c, s.Price, s.ObservedAt)
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	start := time.Now()
	sendErr := d.sink.Send(sendCtx, text)
	cancel()
	d.metrics.RecordLatency("notify_send", time.Since(start).Seconds())

	ev := &models.TriggerEvent{
		ID:            d.ids.Generate().Int64(),
		ConditionID:   c.ID,
		Owner:         c.Owner,
		Symbol:        c.Symbol,
		Kind:          c.Kind,
		Threshold:     c.Threshold,
		Price:         s.Price,
		PreviousPrice: prev,
		OneShot:       c.OneShot,
		Message:       text,
		Delivered:     sendErr == nil,
		FiredAt:       s.ObservedAt,
	}
	if sendErr != nil {
		ev.DeliveryError = sendErr.Error()
		d.metrics.RecordNotification("failed")
		d.log.Error("notification delivery failed", logger.String("symbol", c.Symbol), logger.String("condition_id", c.ID), logger.Error(sendErr))
	} else {
		d.metrics.RecordNotification("sent")
		d.log.Info("alert triggered", logger.String("symbol", c.Symbol), logger.String("kind", string(c.Kind)),
			logger.Decimal("price", s.Price), logger.Decimal("threshold", c.Threshold))
	}

	// One-shot conditions go away even when delivery failed, so they never fire twice.
	removed := false
	if c.OneShot {
		var err error
		removed, err = d.store.Delete(ctx, c.ID)
		if err != nil {
			d.metrics.RecordError("oneshot_delete")
			d.log.Error("one-shot removal failed", logger.String("condition_id", c.ID), logger.Error(err))
		}
	}

	if d.events != nil && !d.events.Enqueue(ev) {
		d.log.Warn("trigger event dropped", logger.Int64("event_id", ev.ID), logger.String("symbol", c.Symbol))
	}
	return removed
}
