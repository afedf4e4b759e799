package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/akuhnert/invoiceflow/internal/common"
	"github.com/akuhnert/invoiceflow/internal/repository"
)

// Operational check: can we reach the database, and what has today's
// processing cost so far. Exits non-zero on any failure.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		logger.Error("DATABASE_URL env var is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.HealthCheck(ctx, pool, logger); err != nil {
		logger.Error("db health check failed", "error", err)
		os.Exit(1)
	}
	logger.Info("db health ok")

	audit := repository.NewProcessingLogRepository(pool, logger)
	spend, documents, err := audit.PeriodSpend(ctx)
	if err != nil {
		logger.Error("reading today's spend", "error", err)
		os.Exit(1)
	}
	logger.Info("today",
		"documents", documents,
		"spend_usd", spend,
		"limit_usd", cfg.Batch.DailyCostLimitUSD,
	)
}
