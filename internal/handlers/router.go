package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterOptions struct {
	Logger *slog.Logger
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
}

func NewRouter(auth *AuthHandler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(RequestID)
	router.Use(RequestLogger(logger))
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	auth.Routes(router)
	return router
}
