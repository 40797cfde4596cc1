package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(t *testing.T) {
	t.Helper()
	orig := connectBackoffBase
	connectBackoffBase = time.Millisecond
	t.Cleanup(func() { connectBackoffBase = orig })
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	fastBackoff(t)

	calls := 0
	err := withRetry(context.Background(), discardLogger(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUp(t *testing.T) {
	fastBackoff(t)

	calls := 0
	err := withRetry(context.Background(), discardLogger(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, MaxConnectAttempts, calls)
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withRetry(ctx, discardLogger(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
