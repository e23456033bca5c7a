package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"

	_ "github.com/lib/pq"
)

const conditionsSchema = `
CREATE TABLE IF NOT EXISTS alert_conditions (
    id          TEXT PRIMARY KEY,
    owner       TEXT NOT NULL DEFAULT '',
    symbol      TEXT NOT NULL,
    kind        TEXT NOT NULL,
    threshold   NUMERIC(38, 12) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    one_shot    BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS alert_conditions_symbol_idx ON alert_conditions (symbol);
`

// PostgresOptions tunes the connection pool.
type PostgresOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres opens and pings a lib/pq pool.
func OpenPostgres(ctx context.Context, dsn string, o PostgresOptions) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if o.MaxOpenConns > 0 {
		db.SetMaxOpenConns(o.MaxOpenConns)
	}
	if o.MaxIdleConns > 0 {
		db.SetMaxIdleConns(o.MaxIdleConns)
	}
	if o.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(o.ConnMaxLifetime)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// PostgresConditions implements ConditionPersistence on a single table.
type PostgresConditions struct {
	db *sql.DB
}

func NewPostgresConditions(db *sql.DB) *PostgresConditions {
	return &PostgresConditions{db: db}
}

// EnsureSchema creates the table and index if missing.
func (p *PostgresConditions) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, conditionsSchema); err != nil {
		return fmt.Errorf("ensure conditions schema: %w", err)
	}
	return nil
}

const selectConditions = `SELECT id, owner, symbol, kind, threshold, description, one_shot, created_at FROM alert_conditions`

func (p *PostgresConditions) Get(ctx context.Context, id string) (*models.Condition, error) {
	row := p.db.QueryRowContext(ctx, selectConditions+` WHERE id = $1`, id)
	c, err := scanCondition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrConditionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get condition %s: %w", id, err)
	}
	return c, nil
}

func (p *PostgresConditions) Put(ctx context.Context, c *models.Condition) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("put condition: missing id")
	}
	const q = `
        INSERT INTO alert_conditions (id, owner, symbol, kind, threshold, description, one_shot, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            owner = EXCLUDED.owner,
            symbol = EXCLUDED.symbol,
            kind = EXCLUDED.kind,
            threshold = EXCLUDED.threshold,
            description = EXCLUDED.description,
            one_shot = EXCLUDED.one_shot`
	_, err := p.db.ExecContext(ctx, q,
		c.ID, c.Owner, c.Symbol, string(c.Kind), c.Threshold, c.Description, c.OneShot, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("put condition %s: %w", c.ID, err)
	}
	return nil
}

func (p *PostgresConditions) Delete(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM alert_conditions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete condition %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete condition %s: %w", id, err)
	}
	return n > 0, nil
}

func (p *PostgresConditions) ListBySymbol(ctx context.Context, symbol string) ([]*models.Condition, error) {
	return p.list(ctx, selectConditions+` WHERE symbol = $1 ORDER BY created_at, id`, symbol)
}

func (p *PostgresConditions) ListAll(ctx context.Context) ([]*models.Condition, error) {
	return p.list(ctx, selectConditions+` ORDER BY created_at, id`)
}

func (p *PostgresConditions) list(ctx context.Context, q string, args ...any) ([]*models.Condition, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list conditions: %w", err)
	}
	defer rows.Close()

	var out []*models.Condition
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCondition(r rowScanner) (*models.Condition, error) {
	var (
		c    models.Condition
		kind string
	)
	if err := r.Scan(&c.ID, &c.Owner, &c.Symbol, &kind, &c.Threshold, &c.Description, &c.OneShot, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Kind = models.Kind(kind)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

var _ domrepo.ConditionPersistence = (*PostgresConditions)(nil)
