package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/payment-router/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("RecordAttempt", func() {
		It("should track processors separately", func() {
			m.RecordAttempt("default", 10*time.Millisecond, true)
			m.RecordAttempt("fallback", 20*time.Millisecond, false)
			m.RecordAttempt("default", 30*time.Millisecond, false)

			snap := m.Snapshot()
			Expect(snap.Processors["default"].Attempts).To(Equal(int64(2)))
			Expect(snap.Processors["default"].Failures).To(Equal(int64(1)))
			Expect(snap.Processors["fallback"].Failures).To(Equal(int64(1)))
		})

		It("should keep a bounded latency window", func() {
			for i := range 1100 {
				m.RecordAttempt("default", time.Duration(i)*time.Millisecond, true)
			}

			snap := m.Snapshot()
			Expect(snap.Processors["default"].Attempts).To(Equal(int64(1100)))
			Expect(snap.Processors["default"].P50Latency).To(Equal(600 * time.Millisecond))
		})
	})

	Describe("Percentiles", func() {
		It("should compute percentiles over sorted samples", func() {
			for _, ms := range []int{50, 10, 40, 20, 30} {
				m.RecordAttempt("default", time.Duration(ms)*time.Millisecond, true)
			}

			p := m.Snapshot().Processors["default"]
			Expect(p.AvgLatency).To(Equal(30 * time.Millisecond))
			Expect(p.P50Latency).To(Equal(30 * time.Millisecond))
			Expect(p.P95Latency).To(Equal(50 * time.Millisecond))
		})
	})

	Describe("RecordOutcome", func() {
		It("should count outcomes", func() {
			m.RecordOutcome("primary")
			m.RecordOutcome("primary")
			m.RecordOutcome("duplicate")

			snap := m.Snapshot()
			Expect(snap.Outcomes).To(HaveKeyWithValue("primary", int64(2)))
			Expect(snap.Outcomes).To(HaveKeyWithValue("duplicate", int64(1)))
		})
	})

	Describe("Snapshot", func() {
		It("should return an empty snapshot for new metrics", func() {
			snap := m.Snapshot()
			Expect(snap.TotalSubmissions).To(BeZero())
			Expect(snap.Processors).To(BeEmpty())
			Expect(snap.Uptime).To(BeNumerically(">=", 0))
		})

		It("should include processors only seen through health updates", func() {
			m.UpdateHealthStatus("default", true)
			Expect(m.Snapshot().Processors["default"].Failing).To(BeTrue())
		})
	})
})
