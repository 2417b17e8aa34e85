package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"

	"github.com/angeloszaimis/payment-router/internal/dispatch"
	"github.com/angeloszaimis/payment-router/internal/metrics"
	"github.com/angeloszaimis/payment-router/internal/payment"
	"github.com/angeloszaimis/payment-router/internal/summary"
)

const (
	maxBodyBytes = 1 << 16
	// StatusProcessing is reported for every accepted submission.
	StatusProcessing = "PROCESSING"

	// Amounts must fit NUMERIC(18, 2): 16 integer digits, 2 fractional.
	maxIntegerDigits = 16
	maxScale         = 2
	// Exponents below this carry more fractional digits than any
	// normalized amount within range can have.
	minExponent = -(maxIntegerDigits + maxScale)
)

var maxAmount = decimal.New(1, maxIntegerDigits)

type PaymentHandler struct {
	logger     *slog.Logger
	queue      dispatch.Queue
	aggregator *summary.Aggregator
	collector  *metrics.Collector
	now        func() time.Time
}

type createPaymentRequest struct {
	CorrelationID string              `json:"correlationId"`
	Amount        decimal.NullDecimal `json:"amount"`
}

func (r createPaymentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CorrelationID, validation.Required, is.UUID),
		validation.Field(&r.Amount, validation.By(validateAmount)),
	)
}

func validateAmount(value interface{}) error {
	amount, ok := value.(decimal.NullDecimal)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a decimal")
	}
	if !amount.Valid {
		return validation.NewError("validation_required", "cannot be blank")
	}
	if !amount.Decimal.IsPositive() {
		return validation.NewError("validation_amount_positive", "must be greater than zero")
	}
	// Bound the exponent before any comparison or rounding rescales it.
	if amount.Decimal.Exponent() >= maxIntegerDigits {
		return validation.NewError("validation_amount_range", "must be less than 10^16")
	}
	if amount.Decimal.Exponent() < minExponent {
		return validation.NewError("validation_amount_scale", "must have at most 2 decimal places")
	}
	if amount.Decimal.GreaterThanOrEqual(maxAmount) {
		return validation.NewError("validation_amount_range", "must be less than 10^16")
	}
	if !amount.Decimal.Equal(amount.Decimal.Round(maxScale)) {
		return validation.NewError("validation_amount_scale", "must have at most 2 decimal places")
	}
	return nil
}

type paymentAck struct {
	CorrelationID string          `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	ReceivedAt    time.Time       `json:"receivedAt"`
}

func NewPaymentHandler(logger *slog.Logger, queue dispatch.Queue, aggregator *summary.Aggregator, collector *metrics.Collector) *PaymentHandler {
	return &PaymentHandler{
		logger:     logger,
		queue:      queue,
		aggregator: aggregator,
		collector:  collector,
		now:        time.Now,
	}
}

// CreatePayment validates a submission and hands it to the dispatch queue.
// The response only acknowledges receipt; routing happens asynchronously.
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := req.Validate(); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "invalid payment", Fields: err})
		return
	}

	sub := payment.Submission{
		CorrelationID: req.CorrelationID,
		Amount:        req.Amount.Decimal,
		RequestedAt:   h.now().UTC(),
	}

	if err := h.queue.Enqueue(r.Context(), sub); err != nil {
		reason := "unavailable"
		switch {
		case errors.Is(err, dispatch.ErrQueueFull):
			reason = "queue_full"
		case errors.Is(err, dispatch.ErrQueueClosed):
			reason = "queue_closed"
		}

		h.logger.Warn("Submission rejected",
			slog.String("correlation_id", sub.CorrelationID),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		h.collector.Emit(metrics.RouteEvent{Type: metrics.EventRejected, Outcome: reason})
		writeError(w, h.logger, http.StatusServiceUnavailable, "payment queue unavailable")
		return
	}

	h.collector.Emit(metrics.RouteEvent{Type: metrics.EventEnqueued})

	writeJSON(w, h.logger, http.StatusAccepted, paymentAck{
		CorrelationID: sub.CorrelationID,
		Amount:        sub.Amount,
		Status:        StatusProcessing,
		ReceivedAt:    sub.RequestedAt,
	})
}

// GetSummary reports per-processor totals for the optional from/to window.
func (h *PaymentHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	sum, err := h.aggregator.Summarize(r.Context(), rng)
	if err != nil {
		h.logger.Error("Summary query failed", slog.String("error", err.Error()))
		writeError(w, h.logger, http.StatusInternalServerError, "summary unavailable")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, sum)
}

// PurgePayments deletes every processed record.
func (h *PaymentHandler) PurgePayments(w http.ResponseWriter, r *http.Request) {
	if err := h.aggregator.Purge(r.Context()); err != nil {
		h.logger.Error("Purge failed", slog.String("error", err.Error()))
		writeError(w, h.logger, http.StatusInternalServerError, "purge failed")
		return
	}

	h.logger.Warn("Processed payments purged")
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"message": "all payments purged"})
}

func parseRange(r *http.Request) (payment.Range, error) {
	var rng payment.Range
	q := r.URL.Query()

	from, err := parseTimestamp(q.Get("from"))
	if err != nil {
		return rng, fmt.Errorf("invalid from: %w", err)
	}
	to, err := parseTimestamp(q.Get("to"))
	if err != nil {
		return rng, fmt.Errorf("invalid to: %w", err)
	}

	rng.From, rng.To = from, to
	return rng, nil
}

func parseTimestamp(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
