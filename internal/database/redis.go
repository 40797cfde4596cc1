package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

func NewRedisClient(ctx context.Context, redisURL string, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = withRetry(ctx, logger, "redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("error pinging redis: %w", err)
	}

	logger.Info("redis client created", "db", opts.DB)
	return client, nil
}
