// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/kantama/portal/internal/config"
	"codeberg.org/kantama/portal/internal/database"
	"codeberg.org/kantama/portal/internal/events"
	"codeberg.org/kantama/portal/internal/jobs"
	"codeberg.org/kantama/portal/internal/repository"
	"codeberg.org/kantama/portal/internal/server"
	"codeberg.org/kantama/portal/internal/services/email"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

var errNoAdminEmail = errors.New("--admin-email is required")

// withDB connects without migrating and closes the database afterwards.
func withDB(cmd *cli.Command, fn func(cfg *config.Config, db *sqlx.DB) error) error {
	cfg := config.NewFromCLI(cmd)
	server.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Connect(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()
	return fn(cfg, db)
}

func migrateUp(_ context.Context, cmd *cli.Command) error {
	return withDB(cmd, func(_ *config.Config, db *sqlx.DB) error {
		return database.RunMigrations(db.DB)
	})
}

func migrateDown(_ context.Context, cmd *cli.Command) error {
	return withDB(cmd, func(_ *config.Config, db *sqlx.DB) error {
		return database.MigrateDown(db.DB)
	})
}

func migrateReset(_ context.Context, cmd *cli.Command) error {
	return withDB(cmd, func(_ *config.Config, db *sqlx.DB) error {
		return database.MigrateReset(db.DB)
	})
}

func migrateStatus(_ context.Context, cmd *cli.Command) error {
	return withDB(cmd, func(_ *config.Config, db *sqlx.DB) error {
		version, err := database.Version(db.DB)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.Root().Writer, "schema version: %d\n", version)
		return nil
	})
}

func ensureAdmin(ctx context.Context, cmd *cli.Command) error {
	return withDB(cmd, func(cfg *config.Config, db *sqlx.DB) error {
		if cfg.Auth.AdminEmail == "" {
			return errNoAdminEmail
		}
		if err := database.RunMigrations(db.DB); err != nil {
			return err
		}
		if _, err := cfg.ResolveJWTSecret(); err != nil {
			return err
		}
		app, err := server.NewApp(cfg, db, server.Deps{
			Sender:    email.NewLogSender(cfg.Server.FrontendURL),
			Publisher: events.LogPublisher{},
		})
		if err != nil {
			return err
		}
		return app.Auth.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
	})
}

func purgeTokens(ctx context.Context, cmd *cli.Command) error {
	return withDB(cmd, func(_ *config.Config, db *sqlx.DB) error {
		n, err := jobs.NewScheduler(repository.New(db), nil).PurgeExpiredTokens(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.Root().Writer, "purged %d expired tokens\n", n)
		return nil
	})
}
