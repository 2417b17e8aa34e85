package healthcheck_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/payment-router/internal/circuitbreaker"
	"github.com/angeloszaimis/payment-router/internal/healthcheck"
	"github.com/angeloszaimis/payment-router/internal/payment"
	"github.com/angeloszaimis/payment-router/internal/processor"
)

var _ = Describe("Monitor", func() {
	var (
		mockProcessor *httptest.Server
		failing       atomic.Bool
		status        atomic.Int32
		delay         atomic.Int64
		breaker       *circuitbreaker.Breaker
		monitor       *healthcheck.Monitor
		log           *slog.Logger
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		failing.Store(false)
		status.Store(http.StatusOK)
		delay.Store(0)

		mockProcessor = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/payments/service-health" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if d := time.Duration(delay.Load()); d > 0 {
				select {
				case <-time.After(d):
				case <-r.Context().Done():
					return
				}
			}
			w.WriteHeader(int(status.Load()))
			if failing.Load() {
				w.Write([]byte(`{"failing": true, "minResponseTime": 0}`))
				return
			}
			w.Write([]byte(`{"failing": false, "minResponseTime": 35}`))
		}))

		client, err := processor.New(payment.Primary, mockProcessor.URL, mockProcessor.Client())
		Expect(err).NotTo(HaveOccurred())

		breaker = circuitbreaker.New(circuitbreaker.DefaultPolicy())
		monitor = healthcheck.NewMonitor(client, breaker, 50*time.Millisecond, 100*time.Millisecond, log, nil)
	})

	AfterEach(func() {
		mockProcessor.Close()
	})

	Describe("Check", func() {
		It("should record a healthy processor", func() {
			snap := monitor.Check(context.Background())
			Expect(snap.Failing).To(BeFalse())
			Expect(snap.MinResponseTime).To(Equal(35))
			Expect(monitor.Snapshot()).To(Equal(snap))
			Expect(breaker.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should open the breaker when the processor reports failing", func() {
			failing.Store(true)
			snap := monitor.Check(context.Background())
			Expect(snap.Failing).To(BeTrue())
			Expect(breaker.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should treat a rate limited probe as failing", func() {
			status.Store(http.StatusTooManyRequests)
			Expect(monitor.Check(context.Background()).Failing).To(BeTrue())
			Expect(breaker.Snapshot().HealthFailing).To(BeTrue())
		})

		It("should treat a probe timeout as failing", func() {
			delay.Store(int64(time.Second))
			start := time.Now()
			Expect(monitor.Check(context.Background()).Failing).To(BeTrue())
			Expect(time.Since(start)).To(BeNumerically("<", 900*time.Millisecond))
		})

		It("should treat an unreachable processor as failing", func() {
			mockProcessor.Close()
			Expect(monitor.Check(context.Background()).Failing).To(BeTrue())
		})
	})

	Describe("Run", func() {
		It("should probe immediately and keep probing", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go monitor.Run(ctx)

			Eventually(func() time.Time {
				return monitor.Snapshot().CheckedAt
			}).ShouldNot(BeZero())

			failing.Store(true)
			Eventually(breaker.State).Should(Equal(circuitbreaker.StateOpen))
		})

		It("should stop when context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				monitor.Run(ctx)
				close(done)
			}()

			cancel()
			Eventually(done).Should(BeClosed())
		})
	})
})
