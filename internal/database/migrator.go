package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// schemaTable records the applied version of the discovery schema.
const schemaTable = "schema_migrations"

// MigrationSet is the ordered list of schema versions shipped in a migrations directory.
type MigrationSet struct {
	Dir      string
	Versions []uint
}

// LoadMigrationSet reads dir and collects the versions that have an up migration.
// Files that do not follow the NNNNNN_name.up|down.sql layout are ignored.
func LoadMigrationSet(dir string) (MigrationSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return MigrationSet{}, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	seen := make(map[uint]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		mig, err := source.Parse(e.Name())
		if err != nil || mig.Direction != source.Up {
			continue
		}
		seen[mig.Version] = true
	}
	if len(seen) == 0 {
		return MigrationSet{}, fmt.Errorf("no up migrations in %s", dir)
	}

	set := MigrationSet{Dir: dir, Versions: make([]uint, 0, len(seen))}
	for v := range seen {
		set.Versions = append(set.Versions, v)
	}
	sort.Slice(set.Versions, func(i, j int) bool { return set.Versions[i] < set.Versions[j] })
	return set, nil
}

// Latest is the highest version in the set.
func (s MigrationSet) Latest() uint {
	if len(s.Versions) == 0 {
		return 0
	}
	return s.Versions[len(s.Versions)-1]
}

// Pending lists the versions above current, in apply order.
func (s MigrationSet) Pending(current uint) []uint {
	i := sort.Search(len(s.Versions), func(i int) bool { return s.Versions[i] > current })
	return append([]uint(nil), s.Versions[i:]...)
}

// SchemaStatus describes where the database sits relative to the shipped migrations.
type SchemaStatus struct {
	Version uint
	Dirty   bool
	Latest  uint
	Pending []uint
}

// Migrator applies the discovery schema migrations with golang-migrate.
type Migrator struct {
	engine *migrate.Migrate
	conn   *sql.DB
	set    MigrationSet
	logger zerolog.Logger
}

// NewMigrator creates a migrator on db reading migrationsPath.
func NewMigrator(db *DB, migrationsPath string, logger zerolog.Logger) (*Migrator, error) {
	switch {
	case db == nil:
		return nil, fmt.Errorf("database is required")
	case db.pool == nil:
		return nil, fmt.Errorf("database pool not initialized")
	case migrationsPath == "":
		return nil, fmt.Errorf("migrations path is required")
	}

	set, err := LoadMigrationSet(migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	conn := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(conn, &postgres.Config{MigrationsTable: schemaTable})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open postgres migration driver: %w", err)
	}

	engine, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	return &Migrator{
		engine: engine,
		conn:   conn,
		set:    set,
		logger: logger.With().Str("migrations_dir", migrationsPath).Uint("schema_latest", set.Latest()).Logger(),
	}, nil
}

// Set returns the migrations this migrator was opened with.
func (m *Migrator) Set() MigrationSet {
	return m.set
}

// Status reports the applied version and the shipped versions not yet applied.
// A database that has never been migrated reports version 0.
func (m *Migrator) Status() (SchemaStatus, error) {
	version, dirty, err := m.engine.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return SchemaStatus{}, fmt.Errorf("read schema version: %w", err)
	}
	return statusFor(m.set, version, dirty), nil
}

func statusFor(set MigrationSet, version uint, dirty bool) SchemaStatus {
	return SchemaStatus{
		Version: version,
		Dirty:   dirty,
		Latest:  set.Latest(),
		Pending: set.Pending(version),
	}
}

// Up applies every pending migration. A dirty schema must be forced first.
func (m *Migrator) Up() error {
	status, err := m.Status()
	if err != nil {
		return err
	}
	if status.Dirty {
		return fmt.Errorf("schema version %d is dirty, force a clean version before migrating", status.Version)
	}
	if len(status.Pending) == 0 {
		m.logger.Info().Uint("schema_version", status.Version).Msg("schema up to date")
		return nil
	}

	m.logger.Info().
		Uint("schema_version", status.Version).
		Int("pending", len(status.Pending)).
		Msg("applying schema migrations")

	if err := m.engine.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	m.logger.Info().Uint("schema_version", status.Latest).Msg("schema migrated")
	return nil
}

// Down rolls back every applied migration.
func (m *Migrator) Down() error {
	err := m.engine.Down()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		m.logger.Info().Msg("schema already empty")
		return nil
	case err != nil:
		return fmt.Errorf("roll back migrations: %w", err)
	}
	m.logger.Info().Msg("schema rolled back")
	return nil
}

// Steps moves n versions up (n > 0) or down (n < 0).
// Running past either end of the set is not an error.
func (m *Migrator) Steps(n int) error {
	err := m.engine.Steps(n)
	switch {
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, os.ErrNotExist):
		m.logger.Info().Int("steps", n).Msg("no schema versions left in that direction")
		return nil
	case err != nil:
		return fmt.Errorf("migrate %d steps: %w", n, err)
	}

	v, _, verr := m.engine.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", verr)
	}
	m.logger.Info().Int("steps", n).Uint("schema_version", v).Msg("schema stepped")
	return nil
}

// Version returns the applied schema version and whether it is dirty.
func (m *Migrator) Version() (uint, bool, error) {
	return m.engine.Version()
}

// Force records version as applied and clean without running any migration.
// Use -1 to clear the version table.
func (m *Migrator) Force(version int) error {
	if version > int(m.set.Latest()) {
		return fmt.Errorf("version %d is above the latest shipped migration %d", version, m.set.Latest())
	}
	m.logger.Warn().Int("schema_version", version).Msg("forcing schema version")
	if err := m.engine.Force(version); err != nil {
		return fmt.Errorf("force schema version %d: %w", version, err)
	}
	return nil
}

// Close releases the migration source and the sql.DB view of the pool.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.engine.Close()
	if m.conn != nil {
		if err := m.conn.Close(); err != nil && dbErr == nil {
			dbErr = err
		}
	}
	if err := errors.Join(sourceErr, dbErr); err != nil {
		return fmt.Errorf("close migrator: %w", err)
	}
	return nil
}
