// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/taibuivan/idgate/internal/api"
	"github.com/taibuivan/idgate/internal/auth/oauth"
	"github.com/taibuivan/idgate/internal/auth/session"
	"github.com/taibuivan/idgate/internal/platform/constants"
	"github.com/taibuivan/idgate/internal/platform/metrics"
	"github.com/taibuivan/idgate/internal/platform/migration"
	"github.com/taibuivan/idgate/internal/users/identity"
)

func newServeCommand() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations at startup")
	return cmd
}

/*
serve runs the gateway until ctx is cancelled.

# Startup Sequence

 1. Initialize structured logger and load configuration.
 2. Connect to PostgreSQL, Redis and, for Mongo sessions, MongoDB.
 3. Run database migrations (idempotent).
 4. Wire the Auth and Users services.
 5. Start the session sweeper and the HTTP server with graceful shutdown.
*/
func serve(ctx context.Context, skipMigrations bool) error {
	cfg, log := bootstrap()
	log.Info("[idgate] service_initializing")

	// Cancelled on return so background work stops before connections close.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	infra := connect(ctx, cfg, log)
	defer infra.close()

	// ── Migrations ────────────────────────────────────────────────────────
	if !skipMigrations {
		must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")
	}

	// ── Metrics ───────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// ── Auth Service ──────────────────────────────────────────────────────
	manager := newSessionManager(ctx, cfg, infra, collector)

	// ── Users Service ─────────────────────────────────────────────────────
	notifier, closeNotifier := newNotifier(cfg, log, collector)
	defer closeNotifier()

	hasher := newHasher()
	identityService := newIdentityService(cfg, infra, manager, notifier, hasher, collector)

	users := session.NewLocalUsers(identityService, cfg.CompanionTimeout)
	authenticator := session.NewAuthenticator(users, manager, hasher, log)

	// ── HTTP Handlers ─────────────────────────────────────────────────────
	liveness, readiness := api.NewHealthHandlers(infra.checks(), log)

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Metrics:   metrics.Handler(registry),
		Users:     identity.NewHandler(identityService, cfg.PublicWebURL),
		Sessions:  session.NewHandler(authenticator, manager, cfg.IsProduction()),
	}

	if providers := oauth.NewProviders(cfg.OAuth); len(providers) > 0 {
		handlers.External = oauth.NewHandler(providers, authenticator.SignInExternal, cfg.PublicWebURL, api.ExternalPrefix, cfg.IsProduction())
		log.Info("oauth_providers_enabled", slog.Int("count", len(providers)))
	}

	// ── Background Work ───────────────────────────────────────────────────
	sweeper := newSweeper(cfg, infra, manager, collector)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	// ── HTTP Server ───────────────────────────────────────────────────────
	server := api.NewServer(ctx, cfg, log, collector, handlers)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown_signal_received")
	case runErr = <-serverErr:
		log.Error("server_startup_error", slog.Any("error", runErr))
	}

	// Give in-flight requests enough time to complete.
	log.Info("shutting_down_server", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("shutdown_error", slog.Any("error", err))
		runErr = errors.Join(runErr, err)
	}

	cancel()
	<-sweeperDone

	log.Info("server_stopped")
	return runErr
}
