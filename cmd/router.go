package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/payment-router/internal/handler"
	"github.com/angeloszaimis/payment-router/internal/metrics"
)

func setupRouter(payments *handler.PaymentHandler, diagnostics *handler.DiagnosticsHandler, collector *metrics.Collector, purgeEnabled bool) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /payments", payments.CreatePayment)
	mux.HandleFunc("GET /payments-summary", payments.GetSummary)
	if purgeEnabled {
		mux.HandleFunc("POST /purge-payments", payments.PurgePayments)
	}

	mux.Handle("GET /diagnostics", diagnostics)
	mux.HandleFunc("GET /diagnostics/routing", collector.Handler())
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}
