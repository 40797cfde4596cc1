package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prudhvinik1/sessionauth/internal/config"
	"github.com/prudhvinik1/sessionauth/internal/database"
	"github.com/prudhvinik1/sessionauth/internal/handlers"
	"github.com/prudhvinik1/sessionauth/internal/logging"
	"github.com/prudhvinik1/sessionauth/internal/metrics"
	"github.com/prudhvinik1/sessionauth/internal/repositories"
	"github.com/prudhvinik1/sessionauth/internal/services"
	"github.com/prudhvinik1/sessionauth/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.Options{
		Level:        cfg.LogLevel,
		Format:       cfg.LogFormat,
		Writer:       cmd.OutOrStdout(),
		RedactFields: cfg.LogRedactFields,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		logging.LogError(logger, "failed to open stores", err)
		return err
	}
	defer stores.Close()

	handler, err := newHandler(cfg, stores, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler,
	}
	return serve(ctx, server, cfg, logger)
}

// stores holds the selected repositories and whatever connections back them.
type stores struct {
	accounts repositories.AccountRepository
	sessions repositories.SessionRepository
	closers  []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	s := &stores{}

	if cfg.NeedsPostgres() {
		if cfg.MigrateOnStart {
			if err := migrateUp(cfg.DatabaseURL); err != nil {
				return nil, err
			}
			logger.Info("migrations applied")
		}

		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)

		if cfg.AccountStore == config.StorePostgres {
			s.accounts = repositories.NewPostgresAccountRepository(pool)
		}
		if cfg.SessionStore == config.StorePostgres {
			s.sessions = repositories.NewPostgresSessionRepository(pool)
		}
	}

	if s.accounts == nil {
		s.accounts = repositories.NewMemoryAccountRepository()
	}

	switch cfg.SessionStore {
	case config.StoreMemory:
		s.sessions = repositories.NewMemorySessionRepository()
	case config.StoreAccount:
		s.sessions = repositories.NewAccountSessionRepository(s.accounts)
	case config.StoreRedis:
		client, err := database.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { client.Close() })
		s.sessions = repositories.NewRedisSessionRepository(client, cfg.SessionDuration)
	}

	logger.Info("stores ready", "accounts", cfg.AccountStore, "sessions", cfg.SessionStore)
	return s, nil
}

func migrateUp(databaseURL string) error {
	m, err := database.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

func newHandler(cfg *config.Config, s *stores, logger *slog.Logger) (http.Handler, error) {
	hasher, err := utils.NewHasher(cfg.Hasher, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	policy := cfg.SessionPolicy()
	sessions := services.NewSessionManager(s.sessions, policy,
		services.WithLogger(logger),
		services.WithMetrics(m),
	)
	auth := services.NewAuthService(s.accounts, sessions, hasher, logger, m)

	authHandler := handlers.NewAuthHandler(auth, handlers.CookieOptions{
		Name:   cfg.SessionName,
		MaxAge: policy.Duration,
		Secure: cfg.CookieSecure,
	}, logger)

	opts := handlers.RouterOptions{Logger: logger}
	if m != nil {
		opts.Metrics = m.Handler()
	}
	return handlers.NewRouter(authHandler, opts), nil
}

// serve runs server until ctx is cancelled, then drains it within
// cfg.ShutdownTimeout.
func serve(ctx context.Context, server *http.Server, cfg *config.Config, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.LogError(logger, "server error", err)
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
