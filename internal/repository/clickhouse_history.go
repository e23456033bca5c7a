package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	pkgch "PriceWatch/pkg/clickhouse"
	applogger "PriceWatch/pkg/logger"

	"github.com/shopspring/decimal"
)

const triggersTable = "alert_triggers"

// TriggerSchema returns the DDL for the trigger history table in database.
func TriggerSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            event_id       Int64,
            condition_id   String,
            owner          String,
            symbol         LowCardinality(String),
            kind           LowCardinality(String),
            threshold      Decimal(38, 12),
            price          Decimal(38, 12),
            previous_price Nullable(Decimal(38, 12)),
            one_shot       Bool,
            delivered      Bool,
            delivery_error String,
            message        String,
            fired_at       DateTime64(3, 'UTC')
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(fired_at)
        ORDER BY (symbol, fired_at, event_id)`, database, triggersTable),
	}
}

// CHHistory implements HistoryStore backed by ClickHouse.
type CHHistory struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHHistory(ch *pkgch.Client, l *applogger.Logger) *CHHistory {
	return &CHHistory{db: ch.DB(), table: ch.Database() + "." + triggersTable, l: l}
}

func (s *CHHistory) Name() string { return "clickhouse" }

func (s *CHHistory) PublishTrigger(ctx context.Context, ev *models.TriggerEvent) error {
	q := fmt.Sprintf(`INSERT INTO %s (event_id, condition_id, owner, symbol, kind, threshold, price, previous_price,
        one_shot, delivered, delivery_error, message, fired_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err := s.db.ExecContext(ctx, q, insertArgs(ev)...)
	if err != nil {
		return fmt.Errorf("insert trigger %d: %w", ev.ID, err)
	}
	return nil
}

func insertArgs(ev *models.TriggerEvent) []any {
	var prev any
	if ev.PreviousPrice != nil {
		prev = *ev.PreviousPrice
	}
	return []any{
		ev.ID,
		ev.ConditionID,
		ev.Owner,
		ev.Symbol,
		string(ev.Kind),
		ev.Threshold,
		ev.Price,
		prev,
		ev.OneShot,
		ev.Delivered,
		ev.DeliveryError,
		ev.Message,
		ev.FiredAt.UTC(),
	}
}

// QueryTriggers returns events for symbol in [from, to], newest first.
func (s *CHHistory) QueryTriggers(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.TriggerEvent, error) {
	start := time.Now()
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := fmt.Sprintf(`
        SELECT event_id, condition_id, owner, symbol, kind, threshold, price, previous_price,
               one_shot, delivered, delivery_error, message, fired_at
        FROM %s
        WHERE symbol = ? AND fired_at >= ? AND fired_at <= ?
        ORDER BY fired_at DESC, event_id DESC
        LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		s.l.Error("clickhouse query_triggers error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("query triggers: %w", err)
	}
	defer rows.Close()

	out := make([]*models.TriggerEvent, 0, limit)
	for rows.Next() {
		var (
			ev   models.TriggerEvent
			kind string
			prev decimal.NullDecimal
		)
		if err := rows.Scan(&ev.ID, &ev.ConditionID, &ev.Owner, &ev.Symbol, &kind, &ev.Threshold, &ev.Price, &prev,
			&ev.OneShot, &ev.Delivered, &ev.DeliveryError, &ev.Message, &ev.FiredAt); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		ev.Kind = models.Kind(kind)
		if prev.Valid {
			p := prev.Decimal
			ev.PreviousPrice = &p
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse query_triggers ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// Close is a no-op; the pool is owned by the clickhouse client.
func (s *CHHistory) Close() error { return nil }

var _ domrepo.HistoryStore = (*CHHistory)(nil)
