// Package databasetest starts a disposable PostgreSQL for integration tests.
package databasetest

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/northstar/funding-discovery/internal/database"
)

// Image is the PostgreSQL image the tests run against.
const Image = "postgres:16-alpine"

// MigrationsPath returns the absolute path of the repository's migrations.
func MigrationsPath(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// Start runs a PostgreSQL container and returns a connected DB. The container
// is terminated when the test ends.
func Start(t *testing.T) *database.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ctr, err := postgres.Run(ctx, Image,
		postgres.WithDatabase("funding_discovery_test"),
		postgres.WithUsername("funding"),
		postgres.WithPassword("funding"),
		postgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	poolConfig.MaxConns = 5

	db, err := database.NewWithConfig(ctx, poolConfig, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

// StartMigrated is Start followed by all up migrations.
func StartMigrated(t *testing.T) *database.DB {
	t.Helper()

	db := Start(t)
	migrator, err := database.NewMigrator(db, MigrationsPath(t), zerolog.Nop())
	require.NoError(t, err)
	defer migrator.Close()
	require.NoError(t, migrator.Up())
	return db
}
