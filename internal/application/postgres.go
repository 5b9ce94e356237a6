package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"thirdcoast.systems/relay/internal/config"
)

var (
	dbOpenBackoffBase  = 1 * time.Second
	dbOpenBackoffScale = 1.618
)

func backoff(i int) time.Duration {
	return time.Duration(float64(dbOpenBackoffBase) * math.Pow(dbOpenBackoffScale, float64(i)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// OpenDBPoolWithRetry initializes a new PostgreSQL connection pool with retry logic.
func OpenDBPoolWithRetry(ctx context.Context, conf config.Config) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var lastErr error

	retries := max(conf.DatabaseRetries, 1)

	cfg, err := pgxpool.ParseConfig(conf.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	slog.Info("Connecting to database", "host", cfg.ConnConfig.Host)
	for i := 0; i < retries; i++ {
		if pool, err = pgxpool.NewWithConfig(ctx, cfg); err == nil {
			break
		}
		lastErr = err

		slog.Warn("database connect failed", "error", err, "retry_in", backoff(i))
		if err := sleepCtx(ctx, backoff(i)); err != nil {
			return nil, err
		}
	}

	if pool == nil {
		return nil, fmt.Errorf("failed to connect to database after multiple attempts: %w", lastErr)
	}

	for i := 0; i < retries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			slog.Info("Pinged database", "host", cfg.ConnConfig.Host)
			return pool, nil
		}
		lastErr = err

		slog.Warn("database ping failed", "error", err, "retry_in", backoff(i))
		if err := sleepCtx(ctx, backoff(i)); err != nil {
			pool.Close()
			return nil, err
		}
	}
	pool.Close()
	return nil, fmt.Errorf("failed to ping database after multiple attempts: %w", lastErr)
}
