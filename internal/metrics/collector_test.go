package metrics_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angeloszaimis/payment-router/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Start and event processing", func() {
		It("should count enqueued submissions", func() {
			before := testutil.ToFloat64(metrics.SubmissionsEnqueued)
			collector.Start(ctx)

			collector.Emit(metrics.RouteEvent{Type: metrics.EventEnqueued})

			Eventually(func() int64 {
				return collector.Snapshot().TotalSubmissions
			}).Should(Equal(int64(1)))
			Expect(testutil.ToFloat64(metrics.SubmissionsEnqueued)).To(Equal(before + 1))
		})

		It("should record delivery attempts per processor", func() {
			collector.Start(ctx)

			collector.Emit(metrics.RouteEvent{Type: metrics.EventAttempt, Processor: "default", Duration: 100 * time.Millisecond, Success: true})
			collector.Emit(metrics.RouteEvent{Type: metrics.EventAttempt, Processor: "default", Duration: 300 * time.Millisecond, Success: false})

			Eventually(func() int64 {
				return collector.Snapshot().Processors["default"].Attempts
			}).Should(Equal(int64(2)))

			p := collector.Snapshot().Processors["default"]
			Expect(p.Failures).To(Equal(int64(1)))
			Expect(p.AvgLatency).To(Equal(200 * time.Millisecond))
			Expect(p.P99Latency).To(Equal(300 * time.Millisecond))
		})

		It("should count routing outcomes", func() {
			before := testutil.ToFloat64(metrics.RoutingOutcomes.WithLabelValues("dropped"))
			collector.Start(ctx)

			collector.Emit(metrics.RouteEvent{Type: metrics.EventRouted, Outcome: "dropped"})

			Eventually(func() int64 {
				return collector.Snapshot().Outcomes["dropped"]
			}).Should(Equal(int64(1)))
			Expect(testutil.ToFloat64(metrics.RoutingOutcomes.WithLabelValues("dropped"))).To(Equal(before + 1))
		})

		It("should track primary health", func() {
			collector.Start(ctx)

			collector.Emit(metrics.RouteEvent{Type: metrics.EventHealthChanged, Processor: "default", Failing: true})

			Eventually(func() bool {
				return collector.Snapshot().Processors["default"].Failing
			}).Should(BeTrue())
			Expect(testutil.ToFloat64(metrics.PrimaryHealthFailing)).To(Equal(1.0))
		})

		It("should sample queue depth", func() {
			collector.TrackQueue(func() int { return 7 })
			collector.Start(ctx)

			Eventually(func() float64 {
				return testutil.ToFloat64(metrics.QueueDepth)
			}, 3*time.Second).Should(Equal(7.0))
		})

		It("should drain events on context cancellation", func() {
			for range 5 {
				collector.EventChannel() <- metrics.RouteEvent{Type: metrics.EventEnqueued}
			}

			collector.Start(ctx)
			cancel()

			Eventually(func() int64 {
				return collector.Snapshot().TotalSubmissions
			}).Should(Equal(int64(5)))
		})
	})

	Describe("Emit", func() {
		It("should not block when the buffer is full", func() {
			small := metrics.NewCollector(1, log)
			small.Emit(metrics.RouteEvent{Type: metrics.EventEnqueued})
			small.Emit(metrics.RouteEvent{Type: metrics.EventEnqueued})
		})

		It("should be a no-op on a nil collector", func() {
			var c *metrics.Collector
			Expect(func() { c.Emit(metrics.RouteEvent{Type: metrics.EventEnqueued}) }).NotTo(Panic())
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			rec := httptest.NewRecorder()
			collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diagnostics/routing", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
			Expect(rec.Body.String()).To(ContainSubstring(`"total_submissions":0`))
		})
	})
})
