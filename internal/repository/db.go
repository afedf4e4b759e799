package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akuhnert/invoiceflow/internal/common"
)

// Open creates a pgx pool from the database config. Workers each check out
// their own connection from this pool, so MaxConns must be at least the
// batch worker bound (Config.Validate enforces it).
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("db.connect", "max_conns", cfg.MaxConns)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("db.parse_config_failed", "error", err)
		return nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "invoiceflow"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("db.connect_failed", "error", err)
		return nil, err
	}

	logger.Info("db.connected")
	return pool, nil
}

// HealthCheck pings the pool to catch DSN issues before a batch starts.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if err := pool.Ping(ctx); err != nil {
		logger.Error("db.ping_failed", "error", err)
		return err
	}
	logger.Debug("db.ping_ok")
	return nil
}
