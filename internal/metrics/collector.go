package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventEnqueued      EventType = "enqueued"
	EventRejected      EventType = "rejected"
	EventAttempt       EventType = "attempt"
	EventRouted        EventType = "routed"
	EventHealthChanged EventType = "health_changed"
)

// RouteEvent is emitted by the pipeline and folded into Metrics by the
// collector goroutine.
type RouteEvent struct {
	Type      EventType
	Timestamp time.Time
	Processor string
	Outcome   string
	Duration  time.Duration
	Success   bool
	Failing   bool
}

const depthSampleInterval = time.Second

type Collector struct {
	eventCh chan RouteEvent
	metrics *Metrics
	logger  *slog.Logger
	depth   func() int
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan RouteEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- RouteEvent {
	return c.eventCh
}

// Emit sends an event without blocking. Events are dropped when the buffer
// is full. Emit is safe on a nil collector.
func (c *Collector) Emit(event RouteEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

// TrackQueue makes the collector sample fn as the queue depth gauge.
// It must be called before Start.
func (c *Collector) TrackQueue(fn func() int) {
	c.depth = fn
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	ticker := time.NewTicker(depthSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ticker.C:
			c.sampleDepth()
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event RouteEvent) {
	switch event.Type {
	case EventEnqueued:
		c.metrics.IncrementSubmissions()
		SubmissionsEnqueued.Inc()

	case EventRejected:
		c.metrics.RecordOutcome(event.Outcome)
		SubmissionsRejected.WithLabelValues(event.Outcome).Inc()

	case EventAttempt:
		c.metrics.RecordAttempt(event.Processor, event.Duration, event.Success)
		result := "failure"
		if event.Success {
			result = "success"
		}
		DeliveryAttempts.WithLabelValues(event.Processor, result).Inc()
		DeliveryDuration.WithLabelValues(event.Processor).Observe(event.Duration.Seconds())

	case EventRouted:
		c.metrics.RecordOutcome(event.Outcome)
		RoutingOutcomes.WithLabelValues(event.Outcome).Inc()

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Processor, event.Failing)
		if event.Failing {
			PrimaryHealthFailing.Set(1)
		} else {
			PrimaryHealthFailing.Set(0)
		}
	}
}

func (c *Collector) sampleDepth() {
	if c.depth == nil {
		return
	}
	QueueDepth.Set(float64(c.depth()))
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
