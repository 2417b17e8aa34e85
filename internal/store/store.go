package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angeloszaimis/payment-router/internal/payment"
	"github.com/angeloszaimis/payment-router/internal/retry"
)

// ErrConflict is returned by Save when the correlation id is already recorded.
var ErrConflict = errors.New("payment already recorded")

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

const connectAttempts = 5

// Precision is the timestamp resolution every driver stores. Postgres
// timestamptz holds microseconds, so the other drivers keep the same.
const Precision = time.Microsecond

// lowerBound rounds a range start up to the stored precision so an inclusive
// bound never admits a record stored just before it.
func lowerBound(t time.Time) time.Time {
	if tr := t.Truncate(Precision); tr.Before(t) {
		return tr.Add(Precision)
	}
	return t
}

// Gateway persists processed payments. Implementations enforce uniqueness
// of the correlation id.
type Gateway interface {
	Exists(ctx context.Context, correlationID string) (bool, error)
	Save(ctx context.Context, rec payment.ProcessedRecord) error
	CountAndSum(ctx context.Context, tag payment.Tag, r payment.Range) (int64, decimal.Decimal, error)
	PurgeAll(ctx context.Context) error
	Close()
}

type Options struct {
	Driver         string
	PostgresDSN    string
	RedisAddr      string
	RedisKeyPrefix string
}

// Open connects to the configured driver, retrying with backoff while the
// backing service comes up.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Gateway, error) {
	backoff := retry.NewBackoff(200*time.Millisecond, 5*time.Second, 2)

	switch opts.Driver {
	case DriverMemory, "":
		return NewMemory(), nil

	case DriverPostgres:
		var pg *Postgres
		err := retry.Do(ctx, backoff, connectAttempts, func(ctx context.Context) error {
			var err error
			pg, err = NewPostgres(ctx, opts.PostgresDSN)
			if err != nil {
				logger.Warn("postgres not ready", slog.String("error", err.Error()))
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return pg, nil

	case DriverRedis:
		var rd *Redis
		err := retry.Do(ctx, backoff, connectAttempts, func(ctx context.Context) error {
			var err error
			rd, err = NewRedis(ctx, opts.RedisAddr, opts.RedisKeyPrefix)
			if err != nil {
				logger.Warn("redis not ready", slog.String("error", err.Error()))
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return rd, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
