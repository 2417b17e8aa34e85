package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/angeloszaimis/payment-router/internal/payment"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_payments (
	correlation_id TEXT PRIMARY KEY,
	amount         NUMERIC(18, 2) NOT NULL,
	processed_at   TIMESTAMPTZ NOT NULL,
	processor_used TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processed_payments_processor_at
	ON processed_payments (processor_used, processed_at);
`

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := p.Exec(ctx, schema); err != nil {
		p.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Postgres{pool: p}, nil
}

func (r *Postgres) Exists(ctx context.Context, correlationID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_payments WHERE correlation_id = $1)`,
		correlationID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payment %s: %w", correlationID, err)
	}
	return exists, nil
}

func (r *Postgres) Save(ctx context.Context, rec payment.ProcessedRecord) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO processed_payments (correlation_id, amount, processed_at, processor_used)
		VALUES ($1, $2::numeric, $3, $4)
		ON CONFLICT (correlation_id) DO NOTHING`,
		rec.CorrelationID, rec.Amount.String(), rec.ProcessedAt, string(rec.Processor),
	)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", rec.CorrelationID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *Postgres) CountAndSum(ctx context.Context, tag payment.Tag, rg payment.Range) (int64, decimal.Decimal, error) {
	var (
		count int64
		total string
		from  *time.Time
	)
	if rg.From != nil {
		t := lowerBound(*rg.From)
		from = &t
	}
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)::text
		FROM processed_payments
		WHERE processor_used = $1
		  AND ($2::timestamptz IS NULL OR processed_at >= $2)
		  AND ($3::timestamptz IS NULL OR processed_at <= $3)`,
		string(tag), from, rg.To,
	).Scan(&count, &total)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("summarize %s: %w", tag, err)
	}

	sum, err := decimal.NewFromString(total)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("parse %s total: %w", tag, err)
	}
	return count, sum, nil
}

func (r *Postgres) PurgeAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `TRUNCATE processed_payments`); err != nil {
		return fmt.Errorf("purge payments: %w", err)
	}
	return nil
}

func (r *Postgres) Close() {
	r.pool.Close()
}
