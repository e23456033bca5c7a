package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorAggregatesRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	var buf bytes.Buffer
	l := NewWriter(&buf)
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("fetch failed", String("symbol", "BTCUSDT"), Error(errors.New("timeout")))
	}
	l.Error("fetch failed", String("symbol", "ETHUSDT"), Error(errors.New("timeout")))

	if got := l.collector.Pending(); got != 2 {
		t.Fatalf("expected 2 distinct entries, got %d", got)
	}
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.topic != "logs" || len(pub.batches) != 1 {
		t.Fatalf("expected one digest on logs, got topic=%q batches=%d", pub.topic, len(pub.batches))
	}
	if pub.batches[0][0].Count != 3 {
		t.Fatalf("expected most frequent entry first with count 3, got %+v", pub.batches[0][0])
	}
	if !strings.Contains(buf.String(), "fetch failed") {
		t.Fatalf("expected log output, got %q", buf.String())
	}
}
