// Package api assembles the HTTP surface: tools, resources, prompts and the
// receipt job endpoints.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/papermes/internal/api/handlers"
	"github.com/dvloznov/papermes/internal/api/middleware"
	"github.com/dvloznov/papermes/internal/jobs"
)

// Options configures NewRouter.
type Options struct {
	Surface   handlers.Surface
	Publisher jobs.Publisher
	Store     jobs.JobStore
	// Uploader is nil when no bucket is configured.
	Uploader  handlers.Uploader
	AuthToken string
	RateLimit float64
	RateBurst int
	Logger    zerolog.Logger
}

// NewRouter builds the routed and middleware-wrapped HTTP handler.
func NewRouter(opts Options) http.Handler {
	log := opts.Logger

	surface := handlers.NewSurfaceHandler(opts.Surface, log)
	receipts := handlers.NewReceiptsHandler(opts.Publisher, opts.Uploader, log)
	jobsHandler := handlers.NewJobsHandler(opts.Store, log)

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", handlers.Health)

	// Tool surface
	r.Get("/tools", surface.ListTools)
	r.Post("/tools/create_transactions", surface.CreateTransactions)
	r.Get("/resources", surface.ListResources)
	r.Get("/resources/accounts", surface.GetAccounts)
	r.Get("/prompts", surface.ListPrompts)
	r.Post("/prompts/{name}", surface.RenderPrompt)

	// Host API
	r.Route("/api", func(r chi.Router) {
		r.Post("/receipts/analyze", receipts.Analyze)
		r.Get("/jobs", jobsHandler.ListJobs)
		r.Get("/jobs/{id}", jobsHandler.GetJob)
	})

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.RateLimit(opts.RateLimit, opts.RateBurst)(
						middleware.Auth(opts.AuthToken)(r),
					),
				),
			),
		),
	)
}
