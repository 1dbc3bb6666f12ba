// Package repository provides the PostgreSQL persistence of the funding
// discovery service.
//
// # Stores
//
//   - DomainStore: the deduplication registry of discovered hostnames and the blacklist
//   - CandidateStore: scored funding candidates and their review state
//   - SessionStore: discovery sessions, their counters and provider errors
//   - PgUsageRepository: the provider API usage ledger
//   - PgDiscoveryStore: the transactional candidate sink used by the result pipeline
//
// # Transactions
//
// Every implementation takes a DBTX, so the same code runs against the pool or
// inside a transaction:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    domains := repository.NewPgDomainRepository(tx)
//	    candidates := repository.NewPgCandidateRepository(tx)
//	    ...
//	})
//
// # Errors
//
// Methods return domain.ErrNotFound, domain.ErrAlreadyExists,
// domain.ErrInvalidInput or domain.ErrInvalidStatusTransition (via the typed
// errors of the domain package) and wrap driver errors with %w.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/northstar/funding-discovery/internal/database"
)

// DBTX is satisfied by *database.DB, *pgxpool.Pool and pgx.Tx.
type DBTX = database.DBTX

// txBeginner is implemented by pools. Methods that need row locks use it to
// open their own transaction when they are not already running in one.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Pagination defaults for list queries.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// applyPaginationDefaults clamps limit to [1, maxPageSize] and offset to >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultPageSize
	}
	if *limit > maxPageSize {
		*limit = maxPageSize
	}
	if *offset < 0 {
		*offset = 0
	}
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// withTx runs fn in a transaction opened on db when db is a pool, or directly
// on db when it already is a transaction.
func withTx(ctx context.Context, db DBTX, fn func(DBTX) error) error {
	beginner, ok := db.(txBeginner)
	if !ok {
		return fn(db)
	}
	tx, err := beginner.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
