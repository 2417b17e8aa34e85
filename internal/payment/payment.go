package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Tag identifies which processor handled a payment.
// The values are the ones written to storage.
type Tag string

const (
	Primary   Tag = "default"
	Secondary Tag = "fallback"
)

// Tags lists every processor tag in routing preference order.
var Tags = []Tag{Primary, Secondary}

// Submission is a single client request to move an amount.
// CorrelationID is the deduplication key.
type Submission struct {
	CorrelationID string          `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
	RequestedAt   time.Time       `json:"requestedAt"`
}

// ProcessedRecord is the durable fact that a submission was delivered.
type ProcessedRecord struct {
	CorrelationID string
	Amount        decimal.Decimal
	ProcessedAt   time.Time
	Processor     Tag
}

// HealthSnapshot is the last known health of the primary processor.
type HealthSnapshot struct {
	Failing         bool      `json:"failing"`
	MinResponseTime int       `json:"minResponseTime"`
	CheckedAt       time.Time `json:"checkedAt"`
}

type ProcessorSummary struct {
	TotalRequests int64           `json:"totalRequests"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

// Summary holds the aggregate volume per processor.
type Summary struct {
	Primary   ProcessorSummary `json:"default"`
	Secondary ProcessorSummary `json:"fallback"`
}

// Set stores s under the given tag.
func (s *Summary) Set(tag Tag, ps ProcessorSummary) {
	switch tag {
	case Primary:
		s.Primary = ps
	case Secondary:
		s.Secondary = ps
	}
}

// Range is an optional inclusive time window. A nil bound is open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}
