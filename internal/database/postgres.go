package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

const (
	MaxConns        = 10
	MinConns        = 2
	MaxConnLifetime = 10 * time.Minute
	MaxConnIdleTime = 5 * time.Minute

	// MaxConnectAttempts bounds how long startup waits for a backend that is
	// still coming up.
	MaxConnectAttempts = 5
)

var connectBackoffBase = 500 * time.Millisecond

func NewPostgresPool(ctx context.Context, databaseURL string, logger *slog.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing postgres config: %w", err)
	}

	config.MaxConns = MaxConns
	config.MinConns = MinConns
	config.MaxConnLifetime = MaxConnLifetime
	config.MaxConnIdleTime = MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating postgres pool: %w", err)
	}

	err = withRetry(ctx, logger, "postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging postgres pool: %w", err)
	}

	logger.Info("postgres pool created", "max_conns", MaxConns)
	return pool, nil
}

// withRetry retries ping with exponential backoff until it succeeds,
// MaxConnectAttempts is reached or ctx is done.
func withRetry(ctx context.Context, logger *slog.Logger, backend string, ping func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(MaxConnectAttempts-1, retry.NewExponential(connectBackoffBase))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := ping(ctx); err != nil {
			logger.Warn("backend not reachable", "backend", backend, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
