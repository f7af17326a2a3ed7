package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Option configures the router.
type Option func(*routerOptions)

type routerOptions struct {
	logger     *slog.Logger
	middleware []func(http.Handler) http.Handler
}

// WithLogger sets the logger for request logs and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *routerOptions) {
		o.logger = logger
	}
}

// WithMiddleware runs mw ahead of the API middleware chain.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(o *routerOptions) {
		o.middleware = append(o.middleware, mw...)
	}
}

// NewRouter builds the HTTP API:
//
//	POST /v1/query    run a SQL query
//	GET  /v1/sources  list registered object types
//	GET  /v1/schema   describe ?source=type.identifier
//	GET  /v1/stats    per-source query statistics
//	GET  /health      liveness
func NewRouter(eng Engine, opts ...Option) http.Handler {
	o := &routerOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	h := NewHandlers(eng, o.logger)

	r := chi.NewRouter()
	r.Use(o.middleware...)
	r.Use(
		RequestIDMiddleware,
		CorrelationIDMiddleware,
		RecoveryMiddleware(o.logger),
		LoggingMiddleware(o.logger),
		ContentTypeMiddleware,
	)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", h.Query)
		r.Get("/sources", h.Sources)
		r.Get("/schema", h.Schema)
		r.Get("/stats", h.Stats)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "nirv"})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed,
			ErrorBody{Category: "REQUEST", Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"},
			GetRequestID(r.Context()))
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound,
			ErrorBody{Category: "REQUEST", Code: "NOT_FOUND", Message: "no such endpoint"},
			GetRequestID(r.Context()))
	})

	return r
}
