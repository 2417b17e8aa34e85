package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/angeloszaimis/payment-router/internal/metrics"
	"github.com/angeloszaimis/payment-router/internal/payment"
	"github.com/angeloszaimis/payment-router/internal/store"
)

// Outcome is the final result of routing one submission.
type Outcome string

const (
	OutcomePrimary          Outcome = "primary"
	OutcomeSecondary        Outcome = "secondary"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeDropped          Outcome = "dropped"
	OutcomeUnrecorded       Outcome = "unrecorded"
	OutcomeStoreUnavailable Outcome = "store_unavailable"
)

// Deliverer forwards a submission to one processor.
type Deliverer interface {
	Tag() payment.Tag
	Deliver(ctx context.Context, sub payment.Submission) error
}

// Breaker is the subset of the circuit breaker the router drives.
type Breaker interface {
	ShouldUsePrimary() bool
	RecordFailure()
	RecordSuccess()
}

// Router forwards each submission to exactly one processor and records it
// at most once.
type Router struct {
	breaker         Breaker
	primary         Deliverer
	secondary       Deliverer
	store           store.Gateway
	deliveryTimeout time.Duration
	logger          *slog.Logger
	collector       *metrics.Collector
	now             func() time.Time
}

type Option func(*Router)

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

func WithCollector(c *metrics.Collector) Option {
	return func(r *Router) {
		r.collector = c
	}
}

func New(breaker Breaker, primary, secondary Deliverer, gw store.Gateway, deliveryTimeout time.Duration, logger *slog.Logger, opts ...Option) *Router {
	r := &Router{
		breaker:         breaker,
		primary:         primary,
		secondary:       secondary,
		store:           gw,
		deliveryTimeout: deliveryTimeout,
		logger:          logger,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle implements dispatch.Handler.
func (r *Router) Handle(ctx context.Context, sub payment.Submission) {
	r.Route(ctx, sub)
}

// Route runs one unit of work: idempotency check, breaker decision, primary
// attempt, failover to the secondary and persistence. It never returns an
// error; every failure ends in an Outcome.
func (r *Router) Route(ctx context.Context, sub payment.Submission) Outcome {
	log := r.logger.With(slog.String("correlation_id", sub.CorrelationID))

	exists, err := r.store.Exists(ctx, sub.CorrelationID)
	if err != nil {
		log.Error("Idempotency check failed, dropping submission", slog.String("error", err.Error()))
		return r.finish(OutcomeStoreUnavailable)
	}
	if exists {
		log.Debug("Submission already processed")
		return r.finish(OutcomeDuplicate)
	}

	if r.breaker.ShouldUsePrimary() {
		err := r.deliver(ctx, r.primary, sub)
		if err == nil {
			r.breaker.RecordSuccess()
			return r.finish(r.save(ctx, log, sub, r.primary.Tag(), OutcomePrimary))
		}
		r.breaker.RecordFailure()
		log.Warn("Primary delivery failed, failing over", slog.String("error", err.Error()))
	}

	if err := r.deliver(ctx, r.secondary, sub); err != nil {
		log.Warn("Secondary delivery failed, dropping submission", slog.String("error", err.Error()))
		return r.finish(OutcomeDropped)
	}

	return r.finish(r.save(ctx, log, sub, r.secondary.Tag(), OutcomeSecondary))
}

func (r *Router) deliver(ctx context.Context, d Deliverer, sub payment.Submission) error {
	deliverCtx, cancel := context.WithTimeout(ctx, r.deliveryTimeout)
	defer cancel()

	start := time.Now()
	err := d.Deliver(deliverCtx, sub)

	r.collector.Emit(metrics.RouteEvent{
		Type:      metrics.EventAttempt,
		Processor: string(d.Tag()),
		Duration:  time.Since(start),
		Success:   err == nil,
	})

	return err
}

func (r *Router) save(ctx context.Context, log *slog.Logger, sub payment.Submission, tag payment.Tag, delivered Outcome) Outcome {
	err := r.store.Save(ctx, payment.ProcessedRecord{
		CorrelationID: sub.CorrelationID,
		Amount:        sub.Amount,
		ProcessedAt:   r.now(),
		Processor:     tag,
	})

	switch {
	case err == nil:
		log.Debug("Payment processed", slog.String("processor", string(tag)))
		return delivered
	case errors.Is(err, store.ErrConflict):
		log.Debug("Payment recorded concurrently", slog.String("processor", string(tag)))
		return OutcomeDuplicate
	default:
		log.Error("Payment delivered but not recorded",
			slog.String("processor", string(tag)),
			slog.String("error", err.Error()))
		return OutcomeUnrecorded
	}
}

func (r *Router) finish(o Outcome) Outcome {
	r.collector.Emit(metrics.RouteEvent{
		Type:    metrics.EventRouted,
		Outcome: string(o),
	})
	return o
}
