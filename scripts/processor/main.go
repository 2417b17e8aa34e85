// Processor is a fake payment processor used to exercise the router locally.
// It accepts payments, reports its health and can be told to fail or slow
// down at runtime.
//
// Usage:
//
//	go run ./scripts/processor -port 8001
//	curl -X PUT localhost:8001/admin/failure -d '{"failure":true}'
//	curl -X PUT localhost:8001/admin/delay -d '{"delay":"250ms"}'
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

type paymentRequest struct {
	CorrelationID string          `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
	RequestedAt   string          `json:"requestedAt"`
}

type processor struct {
	log       *slog.Logger
	failing   atomic.Bool
	delay     atomic.Int64
	errorRate float64

	mutex sync.Mutex
	seen  map[string]decimal.Decimal
}

func main() {
	port := flag.Int("port", 8001, "port to listen on")
	errorRate := flag.Float64("error-rate", 0, "fraction of payments answered with 500")
	flag.Parse()

	p := &processor{
		log:       slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.Int("port", *port)),
		errorRate: *errorRate,
		seen:      make(map[string]decimal.Decimal),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments", p.pay)
	mux.HandleFunc("GET /payments/service-health", p.health)
	mux.HandleFunc("GET /payments-summary", p.summary)
	mux.HandleFunc("PUT /admin/failure", p.setFailure)
	mux.HandleFunc("PUT /admin/delay", p.setDelay)

	addr := fmt.Sprintf(":%d", *port)
	p.log.Info("Starting fake processor", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		p.log.Error("Server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func (p *processor) pay(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(p.delay.Load()))

	if p.failing.Load() || rand.Float64() < p.errorRate {
		http.Error(w, "processor unavailable", http.StatusInternalServerError)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CorrelationID == "" {
		http.Error(w, "invalid payment", http.StatusUnprocessableEntity)
		return
	}

	p.mutex.Lock()
	_, dup := p.seen[req.CorrelationID]
	if !dup {
		p.seen[req.CorrelationID] = req.Amount
	}
	p.mutex.Unlock()

	if dup {
		p.log.Warn("Duplicate payment", slog.String("correlation_id", req.CorrelationID))
		http.Error(w, "duplicate payment", http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "payment processed successfully"})
}

func (p *processor) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"failing":         p.failing.Load(),
		"minResponseTime": time.Duration(p.delay.Load()).Milliseconds(),
	})
}

func (p *processor) summary(w http.ResponseWriter, r *http.Request) {
	p.mutex.Lock()
	total := decimal.Zero
	for _, amount := range p.seen {
		total = total.Add(amount)
	}
	count := len(p.seen)
	p.mutex.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"totalRequests": count,
		"totalAmount":   total,
	})
}

func (p *processor) setFailure(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Failure bool `json:"failure"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	p.failing.Store(body.Failure)
	p.log.Info("Failure mode changed", slog.Bool("failure", body.Failure))
	w.WriteHeader(http.StatusNoContent)
}

func (p *processor) setDelay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delay string `json:"delay"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	d, err := time.ParseDuration(body.Delay)
	if err != nil || d < 0 {
		http.Error(w, "invalid delay", http.StatusBadRequest)
		return
	}
	p.delay.Store(int64(d))
	p.log.Info("Delay changed", slog.Duration("delay", d))
	w.WriteHeader(http.StatusNoContent)
}
