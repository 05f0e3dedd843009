// Package api serves the concept map over HTTP: a JSON API under /api/v1, a
// websocket at /ws that pushes every published snapshot, the health and
// metrics endpoints, and optionally the MCP endpoint.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrWong99/thoughtmap/internal/app"
	"github.com/MrWong99/thoughtmap/internal/health"
	"github.com/MrWong99/thoughtmap/internal/observe"
)

// Server routes HTTP requests to an [app.App].
type Server struct {
	app     *app.App
	health  *health.Handler
	metrics http.Handler
	mcp     http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithMCP mounts h at /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// WithMetricsHandler serves h at /metrics, typically
// [observe.Telemetry.Handler]. Without it /metrics answers 404.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New creates a Server. Readiness covers the credential store and the
// extraction backend.
func New(a *app.App, opts ...Option) *Server {
	s := &Server{
		app: a,
		health: health.New(
			health.CredentialStore(a.Credentials()),
			health.Backend(a.Backend()),
		),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = http.NotFoundHandler()
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observe.Middleware(s.app.Metrics()))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.app.Config().Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"X-Correlation-ID", "Mcp-Session-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.health.Register(r)
	r.Method(http.MethodGet, "/metrics", s.metrics)
	r.Get("/ws", s.handleWS)
	if s.mcp != nil {
		r.Handle("/mcp", s.mcp)
		r.Handle("/mcp/*", s.mcp)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)

		r.Get("/transcript", s.handleGetTranscript)
		r.Post("/transcript", s.handlePostTranscript)
		r.Post("/recording", s.handleRecording)
		r.Post("/extract", s.handleExtract)

		r.Get("/concepts/{id}", s.handleGetConcept)
		r.Post("/concepts/{id}/toggle", s.handleToggle)
		r.Get("/selection", s.handleSelection)

		r.Get("/layout/{kind}", s.handleLayout)
		r.Post("/layout/{kind}/hit", s.handleHit)

		r.Get("/credential", s.handleGetCredential)
		r.Put("/credential", s.handlePutCredential)
		r.Delete("/credential", s.handleDeleteCredential)

		r.Get("/debug/log", s.handleDebugLog)
	})

	return r
}
