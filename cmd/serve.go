package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/payment-router/config"
	"github.com/angeloszaimis/payment-router/internal/broker"
	"github.com/angeloszaimis/payment-router/internal/circuitbreaker"
	"github.com/angeloszaimis/payment-router/internal/dispatch"
	"github.com/angeloszaimis/payment-router/internal/handler"
	"github.com/angeloszaimis/payment-router/internal/healthcheck"
	"github.com/angeloszaimis/payment-router/internal/httpserver"
	"github.com/angeloszaimis/payment-router/internal/metrics"
	"github.com/angeloszaimis/payment-router/internal/payment"
	"github.com/angeloszaimis/payment-router/internal/processor"
	"github.com/angeloszaimis/payment-router/internal/router"
	"github.com/angeloszaimis/payment-router/internal/store"
	"github.com/angeloszaimis/payment-router/internal/summary"
	"github.com/angeloszaimis/payment-router/pkg/logger"
)

const eventBufferSize = 4096

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the dispatch workers",
		Long: `Start the payment router.

Configuration is read from config.yaml, a .env file and the environment.
Environment variables use the key path with dots replaced by underscores,
for example PROCESSORS_PRIMARY_URL or DISPATCH_WORKERS.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Workers outlive the signal so the queue can drain.
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()

	collector := metrics.NewCollector(eventBufferSize, log)

	breaker := circuitbreaker.New(breakerPolicy(cfg), circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
		metrics.BreakerState.Set(float64(to))
		log.Info("Circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	}))

	primary, secondary, err := initializeProcessors(cfg)
	if err != nil {
		return err
	}

	monitor := healthcheck.NewMonitor(primary, breaker,
		config.Duration(cfg.HealthCheck.Interval),
		config.Duration(cfg.HealthCheck.Timeout),
		log, collector)
	go monitor.Run(workCtx)

	gw, err := store.Open(ctx, store.Options{
		Driver:         cfg.Store.Driver,
		PostgresDSN:    cfg.Store.PostgresDSN,
		RedisAddr:      cfg.Store.RedisAddr,
		RedisKeyPrefix: cfg.Store.RedisKeyPrefix,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer gw.Close()

	queue, err := initializeQueue(ctx, cfg, log, collector)
	if err != nil {
		return err
	}
	collector.TrackQueue(queue.Len)
	collector.Start(workCtx)

	rt := router.New(breaker, primary, secondary, gw,
		config.Duration(cfg.Processors.DeliveryTimeout), log,
		router.WithCollector(collector))

	pool := dispatch.NewPool(queue, rt, cfg.Dispatch.Workers, log)
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(workCtx)
	}()

	payments := handler.NewPaymentHandler(log, queue, summary.NewAggregator(gw), collector)
	diagnostics := handler.NewDiagnosticsHandler(log, breaker, monitor, queue, collector, primary, secondary)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(payments, diagnostics, collector, cfg.Admin.PurgeEnabled), log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Payment router started",
		slog.String("address", cfg.Server.Address),
		slog.String("primary", primary.URL().String()),
		slog.String("secondary", secondary.URL().String()),
		slog.String("queue", cfg.Dispatch.Driver),
		slog.String("store", cfg.Store.Driver),
		slog.Int("workers", cfg.Dispatch.Workers))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			runErr = fmt.Errorf("server stopped: %w", err)
		}
	}

	if err := queue.Close(); err != nil {
		log.Warn("Error closing queue", slog.Any("err", err))
	}

	drainTimeout := config.Duration(cfg.Dispatch.DrainTimeout)
	select {
	case <-poolDone:
		log.Info("Dispatch queue drained")
	case <-time.After(drainTimeout):
		log.Warn("Drain timeout reached, abandoning pending submissions",
			slog.Int("pending", queue.Len()),
			slog.Duration("drain_timeout", drainTimeout))
		stopWork()
		<-poolDone
	}

	return runErr
}

func breakerPolicy(cfg *config.Config) circuitbreaker.Policy {
	return circuitbreaker.Policy{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		FailureWindow:    config.Duration(cfg.CircuitBreaker.FailureWindow),
		ResetTimeout:     config.Duration(cfg.CircuitBreaker.ResetTimeout),
		SingleTrial:      cfg.CircuitBreaker.SingleTrial,
	}
}

func initializeProcessors(cfg *config.Config) (*processor.Client, *processor.Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        200,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	primary, err := processor.New(payment.Primary, cfg.Processors.PrimaryURL, httpClient)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid primary processor: %w", err)
	}

	secondary, err := processor.New(payment.Secondary, cfg.Processors.SecondaryURL, httpClient)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid secondary processor: %w", err)
	}

	return primary, secondary, nil
}

func initializeQueue(ctx context.Context, cfg *config.Config, log *slog.Logger, collector *metrics.Collector) (dispatch.Queue, error) {
	switch cfg.Dispatch.Driver {
	case dispatch.DriverAMQP:
		q, err := broker.Dial(ctx, cfg.Broker.AMQPURL, cfg.Broker.Queue, cfg.Dispatch.Workers, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to broker: %w", err)
		}
		return q, nil

	case dispatch.DriverMemory:
		overflow, err := dispatch.ParseOverflow(cfg.Dispatch.Overflow)
		if err != nil {
			return nil, err
		}

		return dispatch.NewMemoryQueue(
			dispatch.WithCapacity(cfg.Dispatch.Capacity, overflow, config.Duration(cfg.Dispatch.EnqueueTimeout)),
			dispatch.WithEvictHook(func(sub payment.Submission) {
				log.Warn("Queue full, evicted oldest submission", slog.String("correlation_id", sub.CorrelationID))
				collector.Emit(metrics.RouteEvent{Type: metrics.EventRouted, Outcome: string(router.OutcomeDropped)})
			}),
		), nil

	default:
		return nil, fmt.Errorf("unknown dispatch driver %q", cfg.Dispatch.Driver)
	}
}
