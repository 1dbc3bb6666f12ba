package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/providers"
)

var _ providers.UsageRecorder = (*PgUsageRepository)(nil)

// PgUsageRepository is the provider_api_usage ledger. The orchestrator writes
// one row per provider call; workers read it back on start to restore quotas.
type PgUsageRepository struct {
	db DBTX
}

// NewPgUsageRepository creates a usage repository on db.
func NewPgUsageRepository(db DBTX) *PgUsageRepository {
	return &PgUsageRepository{db: db}
}

// RecordUsage appends one provider call to the ledger.
func (r *PgUsageRepository) RecordUsage(ctx context.Context, rec providers.UsageRecord) error {
	var sessionID *uuid.UUID
	if rec.SessionID != uuid.Nil {
		sessionID = &rec.SessionID
	}
	var errorKind *string
	if rec.ErrorKind != "" {
		k := string(rec.ErrorKind)
		errorKind = &k
	}
	calledAt := rec.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO provider_api_usage (provider, session_id, query, result_count, success, error_kind, response_time_ms, called_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Provider, sessionID, rec.Query, rec.ResultCount, rec.Success, errorKind,
		rec.Duration.Milliseconds(), calledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record provider usage: %w", err)
	}
	return nil
}

// CallsSince returns the call times of provider after since, oldest first.
func (r *PgUsageRepository) CallsSince(ctx context.Context, provider domain.ProviderID, since time.Time) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT called_at FROM provider_api_usage
		WHERE provider = $1 AND called_at > $2
		ORDER BY called_at`, provider, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider usage: %w", err)
	}
	defer rows.Close()

	var calls []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan provider usage: %w", err)
		}
		calls = append(calls, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider usage: %w", err)
	}
	return calls, nil
}
