package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angeloszaimis/payment-router/internal/payment"
)

const purgeBatch = 500

// saveScript records the payment key and the processor index entry
// atomically, only when the key is new.
var saveScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
	return 1
end
return 0
`)

// Redis stores one key per payment plus a sorted set per processor scored
// by processed time in unix microseconds. Index members are "id|amount".
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     50,
		MinIdleConns: 5,
		PoolTimeout:  2 * time.Second,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaxRetries:   1,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{client: rdb, prefix: prefix}, nil
}

func (r *Redis) paymentKey(correlationID string) string {
	return r.prefix + "payment:" + correlationID
}

func (r *Redis) indexKey(tag payment.Tag) string {
	return r.prefix + "processed:" + string(tag)
}

func (r *Redis) Exists(ctx context.Context, correlationID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.paymentKey(correlationID)).Result()
	if err != nil {
		return false, fmt.Errorf("check payment %s: %w", correlationID, err)
	}
	return n > 0, nil
}

func (r *Redis) Save(ctx context.Context, rec payment.ProcessedRecord) error {
	amount := rec.Amount.String()
	created, err := saveScript.Run(ctx, r.client,
		[]string{r.paymentKey(rec.CorrelationID), r.indexKey(rec.Processor)},
		string(rec.Processor)+"|"+amount,
		rec.ProcessedAt.UnixMicro(),
		rec.CorrelationID+"|"+amount,
	).Int()
	if err != nil {
		return fmt.Errorf("save payment %s: %w", rec.CorrelationID, err)
	}
	if created == 0 {
		return ErrConflict
	}
	return nil
}

func (r *Redis) CountAndSum(ctx context.Context, tag payment.Tag, rg payment.Range) (int64, decimal.Decimal, error) {
	bounds := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if rg.From != nil {
		bounds.Min = strconv.FormatInt(lowerBound(*rg.From).UnixMicro(), 10)
	}
	if rg.To != nil {
		bounds.Max = strconv.FormatInt(rg.To.Truncate(Precision).UnixMicro(), 10)
	}

	members, err := r.client.ZRangeByScore(ctx, r.indexKey(tag), bounds).Result()
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("summarize %s: %w", tag, err)
	}

	sum := decimal.Zero
	for _, m := range members {
		_, raw, ok := strings.Cut(m, "|")
		if !ok {
			return 0, decimal.Zero, fmt.Errorf("malformed index member %q", m)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return 0, decimal.Zero, fmt.Errorf("parse amount in %q: %w", m, err)
		}
		sum = sum.Add(amount)
	}

	return int64(len(members)), sum, nil
}

func (r *Redis) PurgeAll(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", purgeBatch).Iterator()

	keys := make([]string, 0, purgeBatch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == purgeBatch {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("purge payments: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan payments: %w", err)
	}

	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("purge payments: %w", err)
		}
	}
	return nil
}

func (r *Redis) Close() {
	r.client.Close()
}
