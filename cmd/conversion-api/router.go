// Package main provides the conversion API server entrypoint.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/docuforge/conversion-engine/cmd/conversion-api/handlers"
	"github.com/docuforge/conversion-engine/cmd/conversion-api/middleware"
	"github.com/docuforge/conversion-engine/internal/blob"
	"github.com/docuforge/conversion-engine/internal/config"
	"github.com/docuforge/conversion-engine/internal/extract"
	"github.com/docuforge/conversion-engine/internal/jobs"
	"github.com/docuforge/conversion-engine/internal/modify"
	"github.com/docuforge/conversion-engine/internal/observability"
	"github.com/docuforge/conversion-engine/internal/storage"
)

// Deps are the wired services the router exposes. main constructs them so
// connection failures surface at startup rather than on first request.
type Deps struct {
	Repos     *storage.Repositories
	Blobs     blob.Store
	Service   *jobs.Service
	Extractor *extract.Extractor
	Applier   *modify.Applier
	Ready     func() error
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimiddleware.Timeout(cfg.Server.ReadTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"conversion-engine"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.Ready != nil {
			if err := deps.Ready(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	documentHandler := handlers.NewDocumentHandler(logger, deps.Repos, deps.Blobs, cfg.Server.MaxUploadBytes)
	conversionHandler := handlers.NewConversionHandler(logger, deps.Service, deps.Repos)
	contentHandler := handlers.NewContentHandler(logger, deps.Repos, deps.Blobs, deps.Extractor, deps.Applier)
	tenantHandler := handlers.NewTenantHandler(logger, deps.Repos)

	// Provisioning, outside tenancy middleware.
	r.Post("/api/v1/tenants", tenantHandler.Create)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Tenancy(true))

		r.Get("/usage", tenantHandler.Usage)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", documentHandler.Upload)
			r.Get("/", documentHandler.List)
			r.Route("/{documentID}", func(r chi.Router) {
				r.Get("/", documentHandler.Get)
				r.Delete("/", documentHandler.Delete)
				r.Get("/content", documentHandler.Download)
				r.Get("/conversions", conversionHandler.ListByDocument)
				r.Get("/elements", contentHandler.Elements)
				r.Post("/modifications", contentHandler.Modify)
			})
		})

		r.Route("/conversions", func(r chi.Router) {
			r.Post("/", conversionHandler.Create)
			r.Route("/{conversionID}", func(r chi.Router) {
				r.Get("/", conversionHandler.Get)
				r.Post("/cancel", conversionHandler.Cancel)
				r.Post("/retry", conversionHandler.Retry)
			})
		})
	})

	return r
}
