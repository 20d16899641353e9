// Package web provides the ops HTTP server: health, status, Prometheus
// metrics, on-demand validation reports and manual cycle triggering.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/biopipe/internal/config"
	"github.com/JonMunkholm/biopipe/internal/pipeline"
	"github.com/JonMunkholm/biopipe/internal/processing"
	"github.com/JonMunkholm/biopipe/internal/report"
	webmw "github.com/JonMunkholm/biopipe/internal/web/middleware"
)

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CycleStatus exposes the most recent publishing cycle.
type CycleStatus interface {
	Last() *pipeline.Summary
}

// LimiterStatus exposes the per-provider batch limiters.
type LimiterStatus interface {
	Status() map[string]processing.LimiterStatus
}

// Reporter runs validation reports.
type Reporter interface {
	Defaults() report.Options
	Report(ctx context.Context, identifier string, opts report.Options) (*report.Report, error)
}

// Trigger starts cycles on demand.
type Trigger interface {
	Running() bool
	RunNow(ctx context.Context) error
	Next() time.Time
}

// Deps are the collaborators served by the ops server. Nil members disable
// the matching endpoints.
type Deps struct {
	DB       Pinger
	Cycles   CycleStatus
	Limiters LimiterStatus
	Reports  Reporter
	Trigger  Trigger
	Gatherer prometheus.Gatherer
}

// Server is the ops HTTP server.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	router *chi.Mux
	server *http.Server

	// cycleCtx parents manually triggered cycles so they outlive the request.
	cycleCtx context.Context
}

// NewServer creates a new Server instance. cycleCtx parents cycles started
// through the trigger endpoint.
func NewServer(cycleCtx context.Context, cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		router:   chi.NewRouter(),
		cycleCtx: cycleCtx,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/providers/{identifier}/report", s.handleReport)

		r.Group(func(r chi.Router) {
			r.Use(webmw.AdminKeyAuth(s.cfg.AdminKeys))
			r.Post("/cycles", s.handleTriggerCycle)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	slog.Info("ops server starting", "addr", s.cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses. The server only
// returns JSON and metrics text, so nothing may be loaded or framed.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
