package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/payment-router/config"
	"github.com/angeloszaimis/payment-router/internal/payment"
	"github.com/angeloszaimis/payment-router/internal/store"
	"github.com/angeloszaimis/payment-router/internal/summary"
	"github.com/angeloszaimis/payment-router/pkg/logger"
)

func summaryCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print processed payment totals per processor",
		Long: `Query the configured store directly and print the summary as JSON.

Examples:
  payment-router summary
  payment-router summary --from 2025-07-01T00:00:00Z --to 2025-07-02T00:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := parseWindow(from, to)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := logger.NewWithWriter(os.Stderr, cfg.Logging.Level, false, cfg.Server.Environment)

			gw, err := store.Open(cmd.Context(), store.Options{
				Driver:         cfg.Store.Driver,
				PostgresDSN:    cfg.Store.PostgresDSN,
				RedisAddr:      cfg.Store.RedisAddr,
				RedisKeyPrefix: cfg.Store.RedisKeyPrefix,
			}, log)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer gw.Close()

			sum, err := summary.NewAggregator(gw).Summarize(cmd.Context(), rng)
			if err != nil {
				log.Error("Summary query failed", slog.Any("err", err))
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "inclusive lower bound (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "inclusive upper bound (RFC3339)")

	return cmd
}

func parseWindow(from, to string) (payment.Range, error) {
	var rng payment.Range

	if from != "" {
		t, err := time.Parse(time.RFC3339Nano, from)
		if err != nil {
			return rng, fmt.Errorf("invalid --from: %w", err)
		}
		rng.From = &t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339Nano, to)
		if err != nil {
			return rng, fmt.Errorf("invalid --to: %w", err)
		}
		rng.To = &t
	}

	return rng, nil
}
