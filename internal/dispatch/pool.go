package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/angeloszaimis/payment-router/internal/payment"
)

// Handler processes one submission. It owns every failure of that unit of
// work, so it returns nothing.
type Handler interface {
	Handle(ctx context.Context, sub payment.Submission)
}

type HandlerFunc func(ctx context.Context, sub payment.Submission)

func (f HandlerFunc) Handle(ctx context.Context, sub payment.Submission) {
	f(ctx, sub)
}

// Pool runs a fixed number of workers draining a Queue.
type Pool struct {
	queue   Queue
	handler Handler
	workers int
	logger  *slog.Logger
}

func NewPool(queue Queue, handler Handler, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		queue:   queue,
		handler: handler,
		workers: workers,
		logger:  logger,
	}
}

// Run blocks until every worker has exited. Workers stop when the queue is
// closed and drained, or when ctx is done.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("Dispatch workers started", slog.Int("workers", p.workers))
	defer p.logger.Info("Dispatch workers stopped")

	var wg sync.WaitGroup
	for id := range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, id)
		}()
	}
	wg.Wait()
}

func (p *Pool) work(ctx context.Context, id int) {
	for {
		sub, err := p.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) && !errors.Is(err, context.Canceled) {
				p.logger.Error("Dequeue failed",
					slog.Int("worker", id),
					slog.String("error", err.Error()))
			}
			return
		}

		p.handler.Handle(ctx, sub)
	}
}
