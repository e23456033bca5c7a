package repository

import (
	"context"
	"time"

	"PriceWatch/internal/domain/models"

	"github.com/shopspring/decimal"
)

// PriceFeed returns the latest price for a symbol. Errors wrap models.ErrUpstreamFetch
// (retryable) or models.ErrUpstreamPermanent.
type PriceFeed interface {
	Fetch(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// NotificationSink delivers a rendered alert message. Delivery is attempted once.
type NotificationSink interface {
	Send(ctx context.Context, text string) error
}

// ConditionPersistence is the minimal key/index contract the condition store needs.
type ConditionPersistence interface {
	Get(ctx context.Context, id string) (*models.Condition, error)
	Put(ctx context.Context, c *models.Condition) error
	Delete(ctx context.Context, id string) (bool, error)
	ListBySymbol(ctx context.Context, symbol string) ([]*models.Condition, error)
	ListAll(ctx context.Context) ([]*models.Condition, error)
}

// EventSink receives trigger events from the event pipeline.
type EventSink interface {
	Name() string
	PublishTrigger(ctx context.Context, ev *models.TriggerEvent) error
	Close() error
}

// HistoryStore keeps trigger events for later queries.
type HistoryStore interface {
	EventSink
	QueryTriggers(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.TriggerEvent, error)
}

type Metrics interface {
	RecordPoll(symbol string, ok bool)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordTrigger(symbol string, kind models.Kind)
	RecordNotification(result string)
	RecordCooldownSuppressed(symbol string)
	SetActiveStreams(n int)
}
