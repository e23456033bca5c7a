package metrics

import (
	"PriceWatch/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	polls         *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	triggers      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	suppressed    *prometheus.CounterVec
	activeStreams prometheus.Gauge
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		polls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_polls_total",
				Help: "Total number of price polls by outcome",
			},
			[]string{"symbol", "result"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricewatch_last_price",
				Help: "Last observed price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricewatch_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		triggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_triggers_total",
				Help: "Conditions fired, by symbol and kind",
			},
			[]string{"symbol", "kind"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_notifications_total",
				Help: "Notification delivery attempts by result",
			},
			[]string{"result"},
		),
		suppressed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_cooldown_suppressed_total",
				Help: "Triggers suppressed by the cooldown guard",
			},
			[]string{"symbol"},
		),
		activeStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricewatch_active_streams",
				Help: "Number of running stream workers",
			},
		),
	}
}

// RecordPoll counts one poll cycle for symbol.
func (r *Recorder) RecordPoll(symbol string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.polls.WithLabelValues(symbol, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordTrigger(symbol string, kind models.Kind) {
	r.triggers.WithLabelValues(symbol, string(kind)).Inc()
}

func (r *Recorder) RecordNotification(result string) {
	r.notifications.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordCooldownSuppressed(symbol string) {
	r.suppressed.WithLabelValues(symbol).Inc()
}

func (r *Recorder) SetActiveStreams(n int) {
	r.activeStreams.Set(float64(n))
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordPoll(string, bool)           {}
func (Nop) RecordError(string)                {}
func (Nop) RecordLastPrice(string, float64)   {}
func (Nop) RecordLatency(string, float64)     {}
func (Nop) RecordTrigger(string, models.Kind) {}
func (Nop) RecordNotification(string)         {}
func (Nop) RecordCooldownSuppressed(string)   {}
func (Nop) SetActiveStreams(int)              {}
