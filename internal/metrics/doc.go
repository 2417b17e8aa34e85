// Package metrics collects routing metrics for the payment router.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Submissions accepted and refused by the dispatch queue
//   - Delivery attempts and failures per processor
//   - Delivery latency with percentile calculations (P50, P95, P99)
//   - Final routing outcome counts
//   - Primary health status
//
// The collector runs in a dedicated goroutine and never blocks the routing
// path: Emit drops events when the buffer is full. Every event is also
// mirrored to the Prometheus collectors declared in prometheus.go.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.RouteEvent{
//		Type:      metrics.EventAttempt,
//		Processor: "default",
//		Duration:  150 * time.Millisecond,
//		Success:   true,
//	})
//
//	snapshot := collector.Snapshot()
package metrics
