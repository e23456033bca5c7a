package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sample is the latest observed price for a symbol.
type Sample struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// StreamStatus is the lifecycle state of a per-symbol worker.
type StreamStatus string

const (
	StreamStarting StreamStatus = "STARTING"
	StreamActive   StreamStatus = "ACTIVE"
	StreamStopping StreamStatus = "STOPPING"
	StreamStopped  StreamStatus = "STOPPED"
)

// StreamState is a point-in-time copy of a worker's state.
type StreamState struct {
	Symbol              string        `json:"symbol"`
	Status              StreamStatus  `json:"status"`
	Interval            time.Duration `json:"interval"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastError           string        `json:"last_error,omitempty"`
	Permanent           bool          `json:"permanent,omitempty"`
	LastSample          *Sample       `json:"last_sample,omitempty"`
	StartedAt           time.Time     `json:"started_at"`
	StoppedAt           *time.Time    `json:"stopped_at,omitempty"`
}

// SupervisorStatus summarizes all known streams.
type SupervisorStatus struct {
	ActiveStreams int                    `json:"active_streams"`
	Symbols       []string               `json:"symbols"`
	Streams       map[string]StreamState `json:"streams"`
}

// EngineStatus is the public status of the alert engine.
type EngineStatus struct {
	MonitoringActive bool          `json:"monitoring_active"`
	TotalAlerts      int           `json:"total_alerts"`
	ActiveStreams    int           `json:"active_streams"`
	StreamingSymbols []string      `json:"streaming_symbols"`
	CheckInterval    time.Duration `json:"check_interval"`
	CooldownWindow   time.Duration `json:"cooldown_window"`
}

// StreamSummary is one row of the per-symbol stream listing.
type StreamSummary struct {
	Symbol      string           `json:"symbol"`
	Active      bool             `json:"active"`
	Status      StreamStatus     `json:"status,omitempty"`
	AlertsCount int              `json:"alerts_count"`
	LastPrice   *decimal.Decimal `json:"last_price,omitempty"`
	LastUpdate  *time.Time       `json:"last_update,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
}

// Performance is the extended observability view.
type Performance struct {
	Timestamp        time.Time         `json:"timestamp"`
	MonitoringActive bool              `json:"monitoring_active"`
	CheckInterval    time.Duration     `json:"check_interval"`
	TotalAlerts      int               `json:"total_alerts"`
	AlertsBySymbol   map[string]int    `json:"alerts_by_symbol"`
	ActiveStreams    int               `json:"active_streams"`
	StreamSymbols    []string          `json:"stream_symbols"`
	PriceCache       map[string]Sample `json:"price_cache"`
	CooldownWindow   time.Duration     `json:"cooldown_window"`
	ActiveCooldowns  int               `json:"active_cooldowns"`
}
