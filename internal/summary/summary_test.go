package summary_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/angeloszaimis/payment-router/internal/payment"
	"github.com/angeloszaimis/payment-router/internal/store"
	"github.com/angeloszaimis/payment-router/internal/summary"
)

type failingStore struct {
	*store.Memory
}

func (failingStore) CountAndSum(context.Context, payment.Tag, payment.Range) (int64, decimal.Decimal, error) {
	return 0, decimal.Zero, errors.New("connection reset")
}

var _ = Describe("Aggregator", func() {
	var (
		ctx  context.Context
		mem  *store.Memory
		agg  *summary.Aggregator
		base time.Time
	)

	save := func(tag payment.Tag, amount string, at time.Time) {
		Expect(mem.Save(ctx, payment.ProcessedRecord{
			CorrelationID: uuid.NewString(),
			Amount:        decimal.RequireFromString(amount),
			ProcessedAt:   at,
			Processor:     tag,
		})).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		mem = store.NewMemory()
		agg = summary.NewAggregator(mem)
		base = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	})

	It("should report zero for processors without records", func() {
		s, err := agg.Summarize(ctx, payment.Range{})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Primary.TotalRequests).To(BeZero())
		Expect(s.Primary.TotalAmount.IsZero()).To(BeTrue())
		Expect(s.Secondary.TotalRequests).To(BeZero())
		Expect(s.Secondary.TotalAmount.IsZero()).To(BeTrue())
	})

	It("should sum amounts exactly", func() {
		for range 10 {
			save(payment.Primary, "0.10", base)
		}
		save(payment.Secondary, "19.90", base)
		save(payment.Secondary, "0.01", base)

		s, err := agg.Summarize(ctx, payment.Range{})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Primary.TotalRequests).To(Equal(int64(10)))
		Expect(s.Primary.TotalAmount.Equal(decimal.NewFromInt(1))).To(BeTrue())
		Expect(s.Secondary.TotalRequests).To(Equal(int64(2)))
		Expect(s.Secondary.TotalAmount.Equal(decimal.RequireFromString("19.91"))).To(BeTrue())
	})

	It("should honour the time range", func() {
		save(payment.Primary, "1.00", base.Add(-time.Hour))
		save(payment.Primary, "2.00", base)
		save(payment.Primary, "4.00", base.Add(time.Hour))

		from := base
		to := base.Add(time.Hour)
		s, err := agg.Summarize(ctx, payment.Range{From: &from, To: &to})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Primary.TotalRequests).To(Equal(int64(2)))
		Expect(s.Primary.TotalAmount.Equal(decimal.RequireFromString("6.00"))).To(BeTrue())
	})

	It("should propagate store errors", func() {
		agg = summary.NewAggregator(failingStore{mem})
		_, err := agg.Summarize(ctx, payment.Range{})
		Expect(err).To(MatchError(ContainSubstring("connection reset")))
	})

	Describe("Purge", func() {
		It("should make a later summary report zero", func() {
			save(payment.Primary, "5.00", base)
			save(payment.Secondary, "5.00", base)

			Expect(agg.Purge(ctx)).To(Succeed())

			s, err := agg.Summarize(ctx, payment.Range{})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Primary.TotalRequests).To(BeZero())
			Expect(s.Secondary.TotalRequests).To(BeZero())
		})
	})
})
