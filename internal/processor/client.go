package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angeloszaimis/payment-router/internal/payment"
)

// ErrRejected is returned when the processor answers with a non-2xx status.
var ErrRejected = errors.New("processor rejected request")

const (
	paymentsPath = "/payments"
	healthPath   = "/payments/service-health"
	ewmaAlpha    = 0.2

	requestedAtLayout = "2006-01-02T15:04:05.000Z"
)

// Client talks to one downstream payment processor and tracks its
// delivery latency.
type Client struct {
	tag        payment.Tag
	baseURL    *url.URL
	httpClient *http.Client

	mutex       sync.Mutex
	ewmaLatency time.Duration
	hasEWMA     bool
}

type deliverRequest struct {
	CorrelationID string          `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
	RequestedAt   string          `json:"requestedAt"`
}

type healthResponse struct {
	Failing         bool `json:"failing"`
	MinResponseTime int  `json:"minResponseTime"`
}

// New creates a client for the processor at rawURL.
// Timeouts come from the caller's context, so httpClient should not set one.
func New(tag payment.Tag, rawURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s processor url: %w", tag, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%s processor url must use http or https", tag)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		tag:        tag,
		baseURL:    u,
		httpClient: httpClient,
	}, nil
}

// Tag returns the processor tag this client delivers for.
func (c *Client) Tag() payment.Tag {
	return c.tag
}

// URL returns the processor base URL.
func (c *Client) URL() *url.URL {
	return c.baseURL
}

// Deliver forwards sub to the processor. Any transport error, context
// expiry or non-2xx status is returned as an error.
func (c *Client) Deliver(ctx context.Context, sub payment.Submission) error {
	body, err := json.Marshal(deliverRequest{
		CorrelationID: sub.CorrelationID,
		Amount:        sub.Amount,
		RequestedAt:   sub.RequestedAt.UTC().Format(requestedAtLayout),
	})
	if err != nil {
		return fmt.Errorf("encode payment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(paymentsPath), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", c.tag, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	c.RecordResponse(time.Since(start))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %s answered %d", ErrRejected, c.tag, res.StatusCode)
	}

	return nil
}

// Probe queries the processor health endpoint.
func (c *Client) Probe(ctx context.Context) (payment.HealthSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(healthPath), nil)
	if err != nil {
		return payment.HealthSnapshot{}, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return payment.HealthSnapshot{}, fmt.Errorf("probe %s: %w", c.tag, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return payment.HealthSnapshot{}, fmt.Errorf("%w: %s health answered %d", ErrRejected, c.tag, res.StatusCode)
	}

	var hr healthResponse
	if err := json.NewDecoder(res.Body).Decode(&hr); err != nil {
		return payment.HealthSnapshot{}, fmt.Errorf("decode %s health: %w", c.tag, err)
	}

	return payment.HealthSnapshot{
		Failing:         hr.Failing,
		MinResponseTime: hr.MinResponseTime,
		CheckedAt:       time.Now(),
	}, nil
}

// RecordResponse updates the exponentially weighted moving average (EWMA)
// delivery latency using the latest request duration.
func (c *Client) RecordResponse(duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.hasEWMA {
		c.ewmaLatency = duration
		c.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	c.ewmaLatency = time.Duration((1-ewmaAlpha)*float64(c.ewmaLatency) + ewmaAlpha*float64(duration))
}

// EWMATime returns the moving average delivery latency, or 0 before the
// first response.
func (c *Client) EWMATime() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.hasEWMA {
		return 0
	}

	return c.ewmaLatency
}

func (c *Client) resolve(path string) string {
	return c.baseURL.JoinPath(path).String()
}
