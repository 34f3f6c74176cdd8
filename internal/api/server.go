// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Public routes live under /api/v1. Service-to-service routes live under
    /internal and require the X-Service-Token header.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/idgate/internal/auth/oauth"
	"github.com/taibuivan/idgate/internal/auth/session"
	"github.com/taibuivan/idgate/internal/platform/config"
	"github.com/taibuivan/idgate/internal/platform/constants"
	"github.com/taibuivan/idgate/internal/platform/metrics"
	"github.com/taibuivan/idgate/internal/platform/middleware"
	"github.com/taibuivan/idgate/internal/users/identity"
)

// Route prefixes.
const (
	PublicPrefix   = "/api/v1"
	ExternalPrefix = PublicPrefix + "/auth/external"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
type Handlers struct {
	// Liveness is the /health handler; always 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler; 200 when all dependencies answer.
	Readiness http.HandlerFunc

	// Metrics serves the Prometheus scrape endpoint.
	Metrics http.Handler

	// Users handles email verification, password reset and the companion user API.
	Users *identity.Handler

	// Sessions handles sign-up, sign-in, rotation, logout and the companion session API.
	Sessions *session.Handler

	// External handles OAuth sign-in. Nil when no provider is configured.
	External *oauth.Handler
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups. The rate limiter's cleanup loop stops with context.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, collector *metrics.Collector, h Handlers) *Server {
	r := chi.NewRouter()

	limiter := middleware.NewRateLimiter(context, constants.DefaultRateLimitRPS, constants.DefaultRateLimitBurst)

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(collector.Instrument)
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.CORS(cfg, cfg.AllowedOriginSuffix))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated probes for container orchestration.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)
	r.Method(http.MethodGet, "/metrics", h.Metrics)

	// # Application API
	r.Route(PublicPrefix, func(api chi.Router) {
		api.Use(limiter.Handler())

		api.Mount("/users", h.Users.Routes())
		api.Mount("/auth", h.Sessions.Routes())
		if h.External != nil {
			api.Mount("/auth/external", h.External.Routes())
		}
	})

	// # Companion API
	// Service-to-service routes, refused without the shared service token.
	r.Route("/internal", func(internal chi.Router) {
		internal.Use(middleware.RequireServiceToken(cfg.InternalToken))

		internal.Mount("/users", h.Users.InternalRoutes())
		internal.Mount("/sessions", h.Sessions.InternalRoutes())
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server_starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
