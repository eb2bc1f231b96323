package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/arcafs/arca/pkg/api/handlers"
	"github.com/arcafs/arca/pkg/api/middleware"
)

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Middleware stack, in order: request ID, real client IP, request logging,
// panic recovery, metrics, principal resolution. IDs and IPs must resolve
// before the logger snapshots them; recovery sits below the logger so
// panics still produce a completion line. There is deliberately no Timeout
// middleware: object transfers stream at the client's pace and are bounded
// by the http.Server connection timeouts instead.
//
// Routes:
//   - GET  /healthz         liveness probe (unauthenticated)
//   - GET  /healthz/ready   readiness probe (unauthenticated)
//   - POST /auth/login      token issue (only when auth is configured)
//   - POST /auth/refresh    token refresh (only when auth is configured)
//   - GET  /metrics         Prometheus scrape (only when mounted here)
//   - base path (default /files): bucket and object operations
func NewRouter(config Config, opts Options) http.Handler {
	config.applyDefaults()

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics(opts.HTTPMetrics))
	r.Use(middleware.Principal(opts.JWTService))

	healthHandler := handlers.NewHealthHandler(opts.Engine, opts.Version)

	// Health routes - unauthenticated
	r.Route("/healthz", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	if opts.Users != nil && opts.JWTService != nil {
		authHandler := handlers.NewAuthHandler(opts.Users, opts.JWTService)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})
	}

	filesHandler := handlers.NewFilesHandler(opts.Engine, handlers.FilesOptions{
		BasePath:   config.BasePath,
		PublicURL:  config.PublicURL,
		HideDenied: opts.HideDenied,
		Restricted: opts.Restricted,
	})

	r.Route(config.BasePath, func(r chi.Router) {
		r.Post("/", filesHandler.CreateBucket)
		r.Get("/", filesHandler.ListBuckets)

		r.Route("/{bucketID}", func(r chi.Router) {
			r.Head("/", filesHandler.HeadBucket)
			r.Get("/", filesHandler.GetBucket)
			r.Delete("/", filesHandler.DeleteBucket)

			// Object keys may span path segments; the wildcard carries
			// the full key.
			r.Get("/*", filesHandler.GetObject)
			r.Head("/*", filesHandler.HeadObject)
			r.Put("/*", filesHandler.PutObject)
			r.Post("/*", filesHandler.PostObject)
			r.Delete("/*", filesHandler.DeleteObject)
		})
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/healthz", http.StatusTemporaryRedirect)
	})

	return r
}
