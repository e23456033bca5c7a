package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceWatch/internal/domain/models"

	"github.com/shopspring/decimal"
)

func cond(id, symbol string, at time.Time) *models.Condition {
	return &models.Condition{
		ID:        id,
		Owner:     "alice",
		Symbol:    symbol,
		Kind:      models.KindPriceAbove,
		Threshold: decimal.NewFromInt(100),
		OneShot:   true,
		CreatedAt: at,
	}
}

func TestMemoryConditionsIndexes(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryConditions()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, c := range []*models.Condition{
		cond("b", "BTCUSDT", base.Add(2*time.Second)),
		cond("a", "BTCUSDT", base.Add(time.Second)),
		cond("c", "ETHUSDT", base.Add(time.Second)),
	} {
		if err := m.Put(ctx, c); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	got, err := m.ListBySymbol(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}

	all, _ := m.ListAll(ctx)
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "c" || all[2].ID != "b" {
		t.Fatalf("ListAll should sort by created_at then id, got %v %v %v", all[0].ID, all[1].ID, all[2].ID)
	}

	// moving a condition to another symbol reindexes it
	moved := cond("a", "SOLUSDT", base)
	if err := m.Put(ctx, moved); err != nil {
		t.Fatalf("put moved: %v", err)
	}
	if got, _ := m.ListBySymbol(ctx, "BTCUSDT"); len(got) != 1 {
		t.Fatalf("expected 1 BTCUSDT condition after move, got %d", len(got))
	}

	ok, err := m.Delete(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if ok, _ := m.Delete(ctx, "a"); ok {
		t.Fatalf("second delete should report false")
	}
	if _, err := m.Get(ctx, "a"); !errors.Is(err, models.ErrConditionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got, _ := m.ListBySymbol(ctx, "SOLUSDT"); len(got) != 0 {
		t.Fatalf("expected empty SOLUSDT index, got %d", len(got))
	}
}

func TestMemoryConditionsReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryConditions()
	c := cond("x", "BTCUSDT", time.Now())
	if err := m.Put(ctx, c); err != nil {
		t.Fatal(err)
	}
	c.Symbol = "MUTATED"
	got, err := m.Get(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if got.Symbol != "BTCUSDT" {
		t.Fatalf("stored condition was aliased: %s", got.Symbol)
	}
}
