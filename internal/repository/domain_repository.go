package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/northstar/funding-discovery/internal/domain"
)

// DomainStore persists discovered domains and the blacklist.
type DomainStore interface {
	// FindByName returns the domain, or domain.ErrNotFound.
	FindByName(ctx context.Context, name string) (*domain.Domain, error)

	// Save inserts d or overwrites the row with the same name.
	Save(ctx context.Context, d *domain.Domain) error

	// IsBlacklisted reports whether name is blacklisted. Unknown domains are not.
	IsBlacklisted(ctx context.Context, name string) (bool, error)

	// Register upserts name: a new row first seen in sessionID, or one more
	// occurrence of an existing row. The bool is true for a new row.
	Register(ctx context.Context, name string, sessionID uuid.UUID) (*domain.Domain, bool, error)

	// Blacklist marks name blacklisted, registering it first if unknown.
	Blacklist(ctx context.Context, name, by, reason string) (*domain.Domain, error)

	// ListBlacklisted returns every blacklisted domain ordered by name.
	ListBlacklisted(ctx context.Context) ([]*domain.Domain, error)

	// CountByStatus returns the number of domains per status.
	CountByStatus(ctx context.Context) (map[domain.DomainStatus]int64, error)

	// RecordQuality folds one scored candidate into the domain's quality counters.
	RecordQuality(ctx context.Context, id uuid.UUID, confidence decimal.Decimal, highConfidence bool) error
}

var _ DomainStore = (*PgDomainRepository)(nil)

const domainColumns = `id, domain_name, status, first_seen_session_id, first_seen_at, last_seen_at,
	total_occurrences, is_blacklisted, blacklist_reason, blacklisted_by, blacklisted_at,
	high_quality_count, low_quality_count, average_confidence, created_at, updated_at`

// PgDomainRepository is the PostgreSQL DomainStore.
type PgDomainRepository struct {
	db DBTX
}

// NewPgDomainRepository creates a domain repository on db.
func NewPgDomainRepository(db DBTX) *PgDomainRepository {
	return &PgDomainRepository{db: db}
}

// FindByName returns the domain named name.
func (r *PgDomainRepository) FindByName(ctx context.Context, name string) (*domain.Domain, error) {
	query := `SELECT ` + domainColumns + ` FROM domains WHERE domain_name = $1`

	d, err := scanDomain(r.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("domain", name)
		}
		return nil, fmt.Errorf("failed to find domain: %w", err)
	}
	return d, nil
}

// Save inserts d or overwrites the row with the same name.
func (r *PgDomainRepository) Save(ctx context.Context, d *domain.Domain) error {
	if d == nil || d.Name == "" {
		return domain.NewValidationError("domain_name", "domain name is required")
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO domains (` + domainColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (domain_name) DO UPDATE SET
			status = EXCLUDED.status,
			last_seen_at = EXCLUDED.last_seen_at,
			total_occurrences = EXCLUDED.total_occurrences,
			is_blacklisted = EXCLUDED.is_blacklisted,
			blacklist_reason = EXCLUDED.blacklist_reason,
			blacklisted_by = EXCLUDED.blacklisted_by,
			blacklisted_at = EXCLUDED.blacklisted_at,
			high_quality_count = EXCLUDED.high_quality_count,
			low_quality_count = EXCLUDED.low_quality_count,
			average_confidence = EXCLUDED.average_confidence,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		d.ID, d.Name, d.Status, d.FirstSeenSessionID, d.FirstSeenAt, d.LastSeenAt,
		d.TotalOccurrences, d.IsBlacklisted, nullString(d.BlacklistReason), nullString(d.BlacklistedBy), d.BlacklistedAt,
		d.HighQualityCount, d.LowQualityCount, d.AverageConfidence, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save domain: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether name is blacklisted.
func (r *PgDomainRepository) IsBlacklisted(ctx context.Context, name string) (bool, error) {
	var blacklisted bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM domains WHERE domain_name = $1 AND is_blacklisted)`, name,
	).Scan(&blacklisted)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return blacklisted, nil
}

// Register upserts name in a single statement. xmax is 0 only for a freshly
// inserted row, which tells a new domain from an existing one.
func (r *PgDomainRepository) Register(ctx context.Context, name string, sessionID uuid.UUID) (*domain.Domain, bool, error) {
	now := time.Now().UTC()
	var firstSeen *uuid.UUID
	if sessionID != uuid.Nil {
		firstSeen = &sessionID
	}

	query := `
		INSERT INTO domains (id, domain_name, status, first_seen_session_id, first_seen_at, last_seen_at,
			total_occurrences, average_confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5, 1, 0, $5, $5)
		ON CONFLICT (domain_name) DO UPDATE SET
			last_seen_at = EXCLUDED.last_seen_at,
			total_occurrences = domains.total_occurrences + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + domainColumns + `, (xmax = 0) AS inserted`

	var dest domainScanDest
	var inserted bool
	err := r.db.QueryRow(ctx, query, uuid.New(), name, domain.DomainStatusDiscovered, firstSeen, now).
		Scan(append(dest.destinations(), &inserted)...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to register domain: %w", err)
	}
	return dest.finalize(), inserted, nil
}

// Blacklist marks name blacklisted, registering it first if unknown.
func (r *PgDomainRepository) Blacklist(ctx context.Context, name, by, reason string) (*domain.Domain, error) {
	if name == "" {
		return nil, domain.NewValidationError("domain_name", "domain name is required")
	}
	if by == "" {
		return nil, domain.NewValidationError("blacklisted_by", "blacklisted by is required")
	}

	query := `
		INSERT INTO domains (id, domain_name, status, first_seen_at, last_seen_at, total_occurrences,
			is_blacklisted, blacklist_reason, blacklisted_by, blacklisted_at, average_confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $6, $6, 0, TRUE, $4, $5, $6, 0, $6, $6)
		ON CONFLICT (domain_name) DO UPDATE SET
			status = EXCLUDED.status,
			is_blacklisted = TRUE,
			blacklist_reason = EXCLUDED.blacklist_reason,
			blacklisted_by = EXCLUDED.blacklisted_by,
			blacklisted_at = EXCLUDED.blacklisted_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + domainColumns

	d, err := scanDomain(r.db.QueryRow(ctx, query,
		uuid.New(), name, domain.DomainStatusBlacklisted, nullString(reason), by, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("failed to blacklist domain: %w", err)
	}
	return d, nil
}

// ListBlacklisted returns every blacklisted domain ordered by name.
func (r *PgDomainRepository) ListBlacklisted(ctx context.Context) ([]*domain.Domain, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE is_blacklisted ORDER BY domain_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklisted domains: %w", err)
	}
	defer rows.Close()

	domains := []*domain.Domain{}
	for rows.Next() {
		var dest domainScanDest
		if err := rows.Scan(dest.destinations()...); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, dest.finalize())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating domains: %w", err)
	}
	return domains, nil
}

// CountByStatus returns the number of domains per status.
func (r *PgDomainRepository) CountByStatus(ctx context.Context) (map[domain.DomainStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM domains GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count domains: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.DomainStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan domain count: %w", err)
		}
		counts[domain.DomainStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating domain counts: %w", err)
	}
	return counts, nil
}

// RecordQuality folds one scored candidate into the domain's counters and
// running average. A blacklisted domain keeps its status.
func (r *PgDomainRepository) RecordQuality(ctx context.Context, id uuid.UUID, confidence decimal.Decimal, highConfidence bool) error {
	high, low := 0, 1
	if highConfidence {
		high, low = 1, 0
	}

	query := `
		UPDATE domains SET
			average_confidence = ROUND(
				(average_confidence * (high_quality_count + low_quality_count) + $4)
				/ (high_quality_count + low_quality_count + 1), 2),
			high_quality_count = high_quality_count + $2,
			low_quality_count = low_quality_count + $3,
			status = CASE
				WHEN is_blacklisted THEN status
				WHEN high_quality_count + $2 > 0 THEN 'PROCESSED_HIGH_QUALITY'
				ELSE 'PROCESSED_LOW_QUALITY'
			END,
			updated_at = $5
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, high, low, confidence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record domain quality: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("domain", id.String())
	}
	return nil
}

type domainScanDest struct {
	d               domain.Domain
	status          string
	blacklistReason *string
	blacklistedBy   *string
}

func (s *domainScanDest) destinations() []interface{} {
	return []interface{}{
		&s.d.ID, &s.d.Name, &s.status, &s.d.FirstSeenSessionID, &s.d.FirstSeenAt, &s.d.LastSeenAt,
		&s.d.TotalOccurrences, &s.d.IsBlacklisted, &s.blacklistReason, &s.blacklistedBy, &s.d.BlacklistedAt,
		&s.d.HighQualityCount, &s.d.LowQualityCount, &s.d.AverageConfidence, &s.d.CreatedAt, &s.d.UpdatedAt,
	}
}

func (s *domainScanDest) finalize() *domain.Domain {
	s.d.Status = domain.DomainStatus(s.status)
	s.d.BlacklistReason = derefString(s.blacklistReason)
	s.d.BlacklistedBy = derefString(s.blacklistedBy)
	return &s.d
}

func scanDomain(row pgx.Row) (*domain.Domain, error) {
	var dest domainScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize(), nil
}
