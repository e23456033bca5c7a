package metrics

import (
	"testing"

	"PriceWatch/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
)

func gathered(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordPoll("BTCUSDT", true)
	r.RecordPoll("BTCUSDT", true)
	r.RecordPoll("BTCUSDT", false)
	r.RecordTrigger("BTCUSDT", models.KindPriceAbove)
	r.SetActiveStreams(3)
	r.RecordLastPrice("BTCUSDT", 50000.5)

	if got := gathered(t, reg, "pricewatch_polls_total", map[string]string{"symbol": "BTCUSDT", "result": "ok"}); got != 2 {
		t.Fatalf("expected 2 ok polls, got %v", got)
	}
	if got := gathered(t, reg, "pricewatch_polls_total", map[string]string{"result": "error"}); got != 1 {
		t.Fatalf("expected 1 failed poll, got %v", got)
	}
	if got := gathered(t, reg, "pricewatch_triggers_total", map[string]string{"kind": "PRICE_ABOVE"}); got != 1 {
		t.Fatalf("expected 1 trigger, got %v", got)
	}
	if got := gathered(t, reg, "pricewatch_active_streams", nil); got != 3 {
		t.Fatalf("expected 3 active streams, got %v", got)
	}
	if got := gathered(t, reg, "pricewatch_last_price", map[string]string{"symbol": "BTCUSDT"}); got != 50000.5 {
		t.Fatalf("unexpected last price %v", got)
	}
}
