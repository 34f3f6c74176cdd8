// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the idgate identity gateway.
//
// # Commands
//
//   - serve       : Runs the HTTP gateway with the Users and Auth services (default).
//   - migrate     : Applies or rolls back database migrations.
//   - sweep       : Runs one session sweep and exits.
//   - mail-worker : Drains the email queue into the delivering sender.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taibuivan/idgate/internal/platform/config"
)

func main() {
	// Cancelled on SIGTERM / SIGINT so every command shuts down the same way.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "idgate",
		Short:         "Multi-tenant identity gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := newServeCommand()
	cmd.RunE = serve.RunE

	cmd.AddCommand(serve)
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSweepCommand())
	cmd.AddCommand(newMailWorkerCommand())
	return cmd
}

// # Shared Startup

// bootstrap initializes the logger and loads configuration.
//
// The logger is created first so that configuration errors are structured JSON.
func bootstrap() (*config.Config, *slog.Logger) {
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("session_store", cfg.SessionStore),
	)

	return cfg, log
}

func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("app", "idgate"))
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned and
// handled explicitly.
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
