package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/payment-router/internal/metrics"
	"github.com/angeloszaimis/payment-router/internal/payment"
)

// Prober queries a processor's health endpoint.
type Prober interface {
	Probe(ctx context.Context) (payment.HealthSnapshot, error)
}

// HealthSink receives every probe result.
type HealthSink interface {
	UpdateHealth(failing bool)
}

// Monitor periodically probes the primary processor and feeds the result
// to the circuit breaker.
type Monitor struct {
	prober    Prober
	sink      HealthSink
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	collector *metrics.Collector

	mutex    sync.RWMutex
	snapshot payment.HealthSnapshot
	probed   bool
}

func NewMonitor(prober Prober, sink HealthSink, interval, timeout time.Duration, logger *slog.Logger, collector *metrics.Collector) *Monitor {
	return &Monitor{
		prober:    prober,
		sink:      sink,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
		collector: collector,
	}
}

// Run probes immediately and then on every tick until ctx is done.
// Probes never overlap.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health check stopped")
			return

		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs a single probe. Errors are treated as a failing processor and
// are not returned.
func (m *Monitor) Check(ctx context.Context) payment.HealthSnapshot {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	snap, err := m.prober.Probe(probeCtx)
	if err != nil {
		m.logger.Debug("Health probe failed", slog.String("error", err.Error()))
		snap = payment.HealthSnapshot{Failing: true, CheckedAt: time.Now()}
	}

	m.sink.UpdateHealth(snap.Failing)

	m.mutex.Lock()
	changed := !m.probed || m.snapshot.Failing != snap.Failing
	m.snapshot = snap
	m.probed = true
	m.mutex.Unlock()

	if changed {
		if snap.Failing {
			m.logger.Warn("Primary processor is failing")
		} else {
			m.logger.Info("Primary processor is healthy",
				slog.Int("min_response_time_ms", snap.MinResponseTime))
		}
		m.collector.Emit(metrics.RouteEvent{
			Type:      metrics.EventHealthChanged,
			Processor: string(payment.Primary),
			Failing:   snap.Failing,
		})
	}

	return snap
}

// Snapshot returns the last probe result.
func (m *Monitor) Snapshot() payment.HealthSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.snapshot
}
