package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"

	"github.com/nats-io/nats.go"
)

// SubjectPublisher is the slice of *nats.Conn the sink uses.
type SubjectPublisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// NATSEvents publishes trigger events on <prefix>.<SYMBOL> for lightweight subscribers.
type NATSEvents struct {
	conn    SubjectPublisher
	prefix  string
	timeout time.Duration
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

func NewNATSEvents(conn SubjectPublisher, prefix string, timeout time.Duration) *NATSEvents {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSEvents{conn: conn, prefix: prefix, timeout: timeout}
}

func (n *NATSEvents) Name() string { return "nats" }

// Subject returns the subject events for symbol are published on.
func (n *NATSEvents) Subject(symbol string) string {
	return n.prefix + "." + symbol
}

func (n *NATSEvents) PublishTrigger(_ context.Context, ev *models.TriggerEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode trigger %d: %w", ev.ID, err)
	}
	if err := n.conn.Publish(n.Subject(ev.Symbol), data); err != nil {
		return fmt.Errorf("nats publish trigger %d: %w", ev.ID, err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (n *NATSEvents) Close() error {
	err := n.conn.FlushTimeout(n.timeout)
	n.conn.Close()
	if err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

var _ domrepo.EventSink = (*NATSEvents)(nil)
