package summary

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/payment-router/internal/payment"
	"github.com/angeloszaimis/payment-router/internal/store"
)

// Aggregator answers volume queries straight from the store. Nothing is
// cached, so a summary reflects every record committed before the query.
type Aggregator struct {
	store store.Gateway
}

func NewAggregator(gw store.Gateway) *Aggregator {
	return &Aggregator{store: gw}
}

// Summarize returns count and total per processor within r. Processors
// without records report zero.
func (a *Aggregator) Summarize(ctx context.Context, r payment.Range) (payment.Summary, error) {
	var (
		mutex   sync.Mutex
		summary payment.Summary
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, tag := range payment.Tags {
		g.Go(func() error {
			count, total, err := a.store.CountAndSum(ctx, tag, r)
			if err != nil {
				return fmt.Errorf("summarize %s: %w", tag, err)
			}

			mutex.Lock()
			summary.Set(tag, payment.ProcessorSummary{TotalRequests: count, TotalAmount: total})
			mutex.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return payment.Summary{}, err
	}
	return summary, nil
}

// Purge deletes every processed record.
func (a *Aggregator) Purge(ctx context.Context) error {
	return a.store.PurgeAll(ctx)
}
