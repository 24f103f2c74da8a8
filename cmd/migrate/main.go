// Package main applies the SQL migrations in db/migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/archon-research/stl-listing/db/migrator"
	"github.com/archon-research/stl-listing/internal/adapters/outbound/postgres"
	"github.com/archon-research/stl-listing/internal/pkg/env"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := env.NewLogger(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	if err := run(ctx, os.Args[1:], logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dir := fs.String("dir", env.Get("MIGRATIONS_DIR", "./db/migrations"), "Directory of .sql migrations")
	list := fs.Bool("list", false, "List applied migrations and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dbURL := env.Get("DATABASE_URL", "")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(dbURL))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	m := migrator.NewWithLogger(pool, *dir, logger)
	if *list {
		applied, err := m.ListApplied(ctx)
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Println(name)
		}
		return nil
	}

	applied, err := m.ApplyAll(ctx)
	if err != nil {
		return err
	}
	logger.Info("all migrations up to date", "applied", len(applied))
	return nil
}
