// Package api exposes the reconciliation engine and run history over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/claimrecon/internal/model"
	"github.com/sells-group/claimrecon/internal/store"
)

// Reconciler runs one profile batch.
type Reconciler interface {
	Reconcile(ctx context.Context, batch model.ProfileBatch) (*model.Result, error)
}

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64
}

// Server holds handler dependencies.
type Server struct {
	rec     Reconciler
	store   store.Store
	maxBody int64
}

// NewRouter builds the chi router with CORS, per-client rate limiting,
// request logging and panic recovery.
func NewRouter(rec Reconciler, st store.Store, opts Options) http.Handler {
	s := &Server{rec: rec, store: st, maxBody: opts.MaxBodyBytes}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if opts.RateLimitRPS > 0 {
			r.Use(newClientLimiter(opts.RateLimitRPS, opts.RateLimitBurst, 0).Middleware)
		}
		r.Post("/reconcile", s.handleReconcile)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/issues", s.handleListIssues)
	})

	return r
}
