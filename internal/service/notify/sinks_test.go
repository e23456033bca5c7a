package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"PriceWatch/internal/domain/models"
	applogger "PriceWatch/pkg/logger"
)

type stubSink struct {
	err  error
	sent []string
}

func (s *stubSink) Send(_ context.Context, text string) error {
	s.sent = append(s.sent, text)
	return s.err
}

func TestMultiSinkSucceedsIfAnySinkDelivers(t *testing.T) {
	failing := &stubSink{err: errors.New("telegram down")}
	ok := &stubSink{}
	m := NewMultiSink(failing, nil, ok)

	if err := m.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(failing.sent) != 1 || len(ok.sent) != 1 {
		t.Fatalf("expected both sinks attempted, got %d and %d", len(failing.sent), len(ok.sent))
	}
}

func TestMultiSinkFailsWhenAllFail(t *testing.T) {
	m := NewMultiSink(&stubSink{err: errors.New("a")}, &stubSink{err: errors.New("b")})
	err := m.Send(context.Background(), "hello")
	if !errors.Is(err, models.ErrNotificationDelivery) {
		t.Fatalf("expected delivery failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "b") {
		t.Fatalf("expected both causes in %q", err.Error())
	}

	if err := NewMultiSink().Send(context.Background(), "x"); !errors.Is(err, models.ErrNotificationDelivery) {
		t.Fatalf("expected delivery failure for empty sink set, got %v", err)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(applogger.NewWriter(&buf))
	if err := s.Send(context.Background(), "PRICE ALERT"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if !strings.Contains(buf.String(), "PRICE ALERT") {
		t.Fatalf("expected message in log, got %q", buf.String())
	}
}
