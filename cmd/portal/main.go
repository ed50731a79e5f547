// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"codeberg.org/kantama/portal/internal/config"
	"codeberg.org/kantama/portal/internal/server"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	cmd := &cli.Command{
		Name:    "portal",
		Usage:   "Kantama financing application portal",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags:   config.Flags(),
		Action:  server.Run,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API (default)",
				Action: server.Run,
			},
			{
				Name:  "migrate",
				Usage: "Manage the database schema",
				Commands: []*cli.Command{
					{Name: "up", Usage: "Apply all pending migrations", Action: migrateUp},
					{Name: "down", Usage: "Roll back the latest migration", Action: migrateDown},
					{Name: "reset", Usage: "Roll back all migrations", Action: migrateReset},
					{Name: "status", Usage: "Print the current schema version", Action: migrateStatus},
				},
			},
			{
				Name:   "ensure-admin",
				Usage:  "Create or promote the admin account given by --admin-email",
				Action: ensureAdmin,
			},
			{
				Name:   "purge-tokens",
				Usage:  "Drop expired verification and reset tokens once",
				Action: purgeTokens,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
