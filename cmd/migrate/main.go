// Package main is the schema migration CLI of the funding discovery service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/northstar/funding-discovery/internal/config"
	"github.com/northstar/funding-discovery/internal/database"
	"github.com/northstar/funding-discovery/internal/observability"
)

const connectTimeout = 30 * time.Second

type options struct {
	up      bool
	down    bool
	steps   int
	version bool
	force   int
	path    string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var o options
	flag.BoolVar(&o.up, "up", false, "Apply all pending migrations")
	flag.BoolVar(&o.down, "down", false, "Roll back every migration")
	flag.IntVar(&o.steps, "steps", 0, "Apply N steps (negative rolls back)")
	flag.BoolVar(&o.version, "version", false, "Print the schema version")
	flag.IntVar(&o.force, "force", -1, "Force the schema version after a failed migration")
	flag.StringVar(&o.path, "path", "", "Migrations directory (overrides database.migration_path)")
	flag.Parse()

	actions := 0
	for _, set := range []bool{o.up, o.down, o.steps != 0, o.version, o.force >= 0} {
		if set {
			actions++
		}
	}
	switch {
	case actions == 0:
		flag.Usage()
		return o, errors.New("no action specified: use -up, -down, -steps N, -version or -force V")
	case actions > 1:
		return o, errors.New("specify exactly one action")
	}
	return o, nil
}

func run() error {
	opts, err := parseFlags()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "migrate").Logger()

	dir := cfg.Database.MigrationPath
	if opts.path != "" {
		dir = opts.path
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, dir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close migrator")
		}
	}()

	if err := apply(migrator, opts, logger); err != nil {
		return err
	}
	logVersion(migrator, logger)
	return nil
}

func apply(m *database.Migrator, opts options, logger zerolog.Logger) error {
	switch {
	case opts.up:
		if err := m.Up(); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case opts.down:
		logger.Warn().Msg("rolling back all migrations")
		if err := m.Down(); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case opts.steps != 0:
		if err := m.Steps(opts.steps); err != nil {
			return fmt.Errorf("migrate %d steps: %w", opts.steps, err)
		}
	case opts.force >= 0:
		if err := m.Force(opts.force); err != nil {
			return fmt.Errorf("force version %d: %w", opts.force, err)
		}
	}
	return nil
}

func logVersion(m *database.Migrator, logger zerolog.Logger) {
	status, err := m.Status()
	if err != nil {
		logger.Warn().Err(err).Msg("could not read schema version")
		return
	}
	logger.Info().
		Uint("schema_version", status.Version).
		Bool("dirty", status.Dirty).
		Uint("schema_latest", status.Latest).
		Int("pending", len(status.Pending)).
		Msg("schema status")
}
