// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/taibuivan/idgate/internal/platform/mailer"
	"github.com/taibuivan/idgate/internal/platform/metrics"
	"github.com/taibuivan/idgate/internal/platform/migration"
)

// # Migrations

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(runner *migration.Runner) error { return runner.Up() })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid steps %q: %w", args[0], err)
				}
				steps = parsed
			}
			return withRunner(func(runner *migration.Runner) error { return runner.Down(steps) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(runner *migration.Runner) error {
				version, isDirty, err := runner.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, isDirty)
				return nil
			})
		},
	})

	return cmd
}

func withRunner(fn func(runner *migration.Runner) error) error {
	cfg, log := bootstrap()

	runner, err := migration.Open(cfg.DatabaseURL, cfg.MigrationPath, log)
	if err != nil {
		return err
	}
	defer runner.Close()

	return fn(runner)
}

// # Session Sweep

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired and idle sessions once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := bootstrap()

			infra := connect(cmd.Context(), cfg, log)
			defer infra.close()

			manager := newSessionManager(cmd.Context(), cfg, infra, metrics.Nop{})
			result, err := newSweeper(cfg, infra, manager, metrics.Nop{}).RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			log.Info("session_sweep_completed",
				slog.Int64("expired", result.Expired),
				slog.Int64("inactive", result.Inactive),
			)
			return nil
		},
	}
}

// # Mail Worker

func newMailWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mail-worker",
		Short: "Deliver queued emails until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := bootstrap()
			if cfg.AMQPURL == "" {
				return fmt.Errorf("mail-worker requires AMQP_URL")
			}

			log.Info("mail_worker_started", slog.String("queue", cfg.MailQueue))
			consumer := mailer.NewQueueConsumer(cfg.AMQPURL, cfg.MailQueue, newMailSender(cfg, log), log)
			if err := consumer.Run(cmd.Context()); err != nil {
				return err
			}

			log.Info("mail_worker_stopped")
			return nil
		},
	}
}
