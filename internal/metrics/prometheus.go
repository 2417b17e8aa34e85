package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_router_submissions_enqueued_total",
		Help: "Submissions accepted into the dispatch queue",
	})

	SubmissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_router_submissions_rejected_total",
		Help: "Submissions refused or evicted by the dispatch queue",
	}, []string{"reason"})

	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_router_delivery_attempts_total",
		Help: "Delivery attempts per processor and result",
	}, []string{"processor", "result"})

	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_router_delivery_duration_seconds",
		Help:    "Time spent delivering a payment to a processor",
		Buckets: prometheus.DefBuckets,
	}, []string{"processor"})

	RoutingOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_router_outcomes_total",
		Help: "Final routing outcome per submission",
	}, []string{"outcome"})

	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_router_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_router_queue_depth",
		Help: "Submissions waiting in the dispatch queue",
	})

	PrimaryHealthFailing = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_router_primary_health_failing",
		Help: "1 when the last primary health probe reported failing",
	})
)
