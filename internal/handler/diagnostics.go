package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/payment-router/internal/circuitbreaker"
	"github.com/angeloszaimis/payment-router/internal/dispatch"
	"github.com/angeloszaimis/payment-router/internal/metrics"
	"github.com/angeloszaimis/payment-router/internal/payment"
)

type BreakerSource interface {
	Snapshot() circuitbreaker.Status
}

type HealthSource interface {
	Snapshot() payment.HealthSnapshot
}

// LatencySource reports a processor's smoothed response time.
type LatencySource interface {
	Tag() payment.Tag
	EWMATime() time.Duration
}

type DiagnosticsHandler struct {
	logger    *slog.Logger
	breaker   BreakerSource
	health    HealthSource
	queue     dispatch.Queue
	collector *metrics.Collector
	latencies []LatencySource
}

type diagnostics struct {
	Breaker    circuitbreaker.Status  `json:"breaker"`
	Health     payment.HealthSnapshot `json:"health"`
	QueueDepth int                    `json:"queueDepth"`
	Latency    map[payment.Tag]int64  `json:"latencyMs,omitempty"`
	Routing    *metrics.Snapshot      `json:"routing,omitempty"`
}

func NewDiagnosticsHandler(logger *slog.Logger, breaker BreakerSource, health HealthSource, queue dispatch.Queue, collector *metrics.Collector, latencies ...LatencySource) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		logger:    logger,
		breaker:   breaker,
		health:    health,
		queue:     queue,
		collector: collector,
		latencies: latencies,
	}
}

func (h *DiagnosticsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d := diagnostics{
		Breaker:    h.breaker.Snapshot(),
		Health:     h.health.Snapshot(),
		QueueDepth: h.queue.Len(),
	}
	if len(h.latencies) > 0 {
		d.Latency = make(map[payment.Tag]int64, len(h.latencies))
		for _, l := range h.latencies {
			d.Latency[l.Tag()] = l.EWMATime().Milliseconds()
		}
	}
	if h.collector != nil {
		snap := h.collector.Snapshot()
		d.Routing = &snap
	}

	writeJSON(w, h.logger, http.StatusOK, d)
}
