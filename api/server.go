/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (httplog, ECS schema)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the web UI
  5. Auth:       auth.Middleware on /api/leaves (except /health)
  6. Admin:      auth.RequireRole(admin) on /all, /stats, /{id}/status

ROUTE GROUPS:
  /api/leaves/*   Leave workflow
  /healthz        Liveness
  /readyz         Readiness (store ping)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"io"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/warp/leave-engine/auth"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// RequestLogLevel is the level request lines are logged at.
	RequestLogLevel slog.Level
}

// NewLogger builds the service's JSON logger using the ECS field names that
// httplog writes for request lines.
func NewLogger(w io.Writer, level slog.Level, env string) *slog.Logger {
	logFormat := httplog.SchemaECS.Concise(false)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "leave-service"),
		slog.String("env", env),
	)
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, provider auth.Provider, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(httplog.RequestLogger(h.logger, &httplog.Options{
		Level:  opts.RequestLogLevel,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Live)
	r.Get("/readyz", h.Ready)

	r.Route("/api/leaves", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(provider, h.deny))

			r.Post("/apply", h.ApplyLeave)
			r.Get("/my-leaves", h.MyLeaves)
			r.Get("/balance", h.MyBalance)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(h.deny, auth.RoleAdmin))

				r.Get("/all", h.AllLeaves)
				r.Get("/stats", h.Stats)
				r.Patch("/{id}/status", h.UpdateStatus)
			})
		})
	})

	return r
}
