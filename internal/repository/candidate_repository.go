package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/northstar/funding-discovery/internal/domain"
)

// CandidateStore persists funding candidates and their review decisions.
type CandidateStore interface {
	// Save inserts a candidate. The domain row must exist.
	Save(ctx context.Context, c *domain.Candidate) error

	// Get returns the candidate, or domain.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Candidate, error)

	// List returns one page of candidates matching filter, highest confidence
	// first, and the total number of matches.
	List(ctx context.Context, filter CandidateFilter) ([]*domain.Candidate, int64, error)

	// UpdateStatus records a review decision. Only unreviewed candidates can be
	// approved or rejected; anything else is domain.ErrInvalidStatusTransition.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CandidateStatus, reviewedBy, reason string) (*domain.Candidate, error)
}

// CandidateFilter narrows CandidateStore.List.
type CandidateFilter struct {
	Status        domain.CandidateStatus
	MinConfidence *decimal.Decimal
	Provider      domain.ProviderID
	SessionID     *uuid.UUID

	// Limit defaults to 20 and is capped at 100.
	Limit  int
	Offset int
}

var _ CandidateStore = (*PgCandidateRepository)(nil)

const candidateColumns = `c.id, c.session_id, c.domain_id, d.domain_name, c.url, c.title, c.description,
	c.organization_name, c.program_name, c.provider, c.query, c.confidence_score, c.status, c.reasoning,
	c.created_at, c.reviewed_at, c.reviewed_by, c.rejection_reason`

const candidateFrom = ` FROM funding_candidates c JOIN domains d ON d.id = c.domain_id`

// PgCandidateRepository is the PostgreSQL CandidateStore.
type PgCandidateRepository struct {
	db DBTX
}

// NewPgCandidateRepository creates a candidate repository on db.
func NewPgCandidateRepository(db DBTX) *PgCandidateRepository {
	return &PgCandidateRepository{db: db}
}

// Save inserts a candidate.
func (r *PgCandidateRepository) Save(ctx context.Context, c *domain.Candidate) error {
	if c == nil {
		return domain.NewValidationError("candidate", "candidate cannot be nil")
	}
	if c.ID == uuid.Nil {
		return domain.NewValidationError("id", "candidate ID is required")
	}
	if c.DomainID == uuid.Nil {
		return domain.NewValidationError("domain_id", "domain ID is required")
	}
	if c.URL == "" {
		return domain.NewValidationError("url", "url is required")
	}

	query := `
		INSERT INTO funding_candidates (
			id, session_id, domain_id, url, title, description,
			organization_name, program_name, provider, query,
			confidence_score, status, reasoning, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.Exec(ctx, query,
		c.ID, c.SessionID, c.DomainID, c.URL, c.Title, c.Description,
		c.OrganizationName, c.ProgramName, c.Provider, c.Query,
		c.ConfidenceScore, c.Status, c.Reasoning, c.CreatedAt,
	)
	if err != nil {
		switch {
		case isPgError(err, pgUniqueViolation):
			return domain.NewAlreadyExistsError("candidate", c.ID.String())
		case isPgError(err, pgForeignKeyViolation):
			return fmt.Errorf("candidate references unknown session or domain: %w", domain.ErrInvalidInput)
		}
		return fmt.Errorf("failed to create candidate: %w", err)
	}
	return nil
}

// Get returns the candidate with id.
func (r *PgCandidateRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Candidate, error) {
	query := `SELECT ` + candidateColumns + candidateFrom + ` WHERE c.id = $1`

	c, err := scanCandidate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("candidate", id.String())
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return c, nil
}

// List returns one page of matching candidates and the total match count.
func (r *PgCandidateRepository) List(ctx context.Context, filter CandidateFilter) ([]*domain.Candidate, int64, error) {
	applyPaginationDefaults(&filter.Limit, &filter.Offset)

	var conditions []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("c.status = $%d", filter.Status)
	}
	if filter.MinConfidence != nil {
		add("c.confidence_score >= $%d", *filter.MinConfidence)
	}
	if filter.Provider != "" {
		add("c.provider = $%d", filter.Provider)
	}
	if filter.SessionID != nil {
		add("c.session_id = $%d", *filter.SessionID)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*)"+candidateFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count candidates: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY c.confidence_score DESC, c.created_at DESC LIMIT $%d OFFSET $%d`,
		candidateColumns, candidateFrom, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]*domain.Candidate, 0, filter.Limit)
	for rows.Next() {
		var dest candidateScanDest
		if err := rows.Scan(dest.destinations()...); err != nil {
			return nil, 0, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, dest.finalize())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating candidates: %w", err)
	}
	return candidates, total, nil
}

// UpdateStatus locks the candidate row, checks the transition and records the
// review decision.
func (r *PgCandidateRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CandidateStatus, reviewedBy, reason string) (*domain.Candidate, error) {
	if reviewedBy == "" {
		return nil, domain.NewValidationError("reviewed_by", "reviewer is required")
	}

	var updated *domain.Candidate
	err := withTx(ctx, r.db, func(db DBTX) error {
		query := `SELECT ` + candidateColumns + candidateFrom + ` WHERE c.id = $1 FOR UPDATE OF c`
		c, err := scanCandidate(db.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NewNotFoundError("candidate", id.String())
			}
			return fmt.Errorf("failed to lock candidate: %w", err)
		}

		if !c.Status.CanTransitionTo(status) {
			return fmt.Errorf("candidate %s is %s, cannot move to %s: %w",
				id, c.Status, status, domain.ErrInvalidStatusTransition)
		}

		now := time.Now().UTC()
		c.Status = status
		c.ReviewedAt = &now
		c.ReviewedBy = reviewedBy
		c.RejectionReason = ""
		if status == domain.CandidateStatusRejected {
			c.RejectionReason = reason
		}

		_, err = db.Exec(ctx, `
			UPDATE funding_candidates
			SET status = $1, reviewed_at = $2, reviewed_by = $3, rejection_reason = $4
			WHERE id = $5`,
			c.Status, c.ReviewedAt, c.ReviewedBy, nullString(c.RejectionReason), id)
		if err != nil {
			return fmt.Errorf("failed to update candidate status: %w", err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type candidateScanDest struct {
	c               domain.Candidate
	provider        string
	status          string
	reviewedBy      *string
	rejectionReason *string
}

func (s *candidateScanDest) destinations() []interface{} {
	return []interface{}{
		&s.c.ID, &s.c.SessionID, &s.c.DomainID, &s.c.DomainName, &s.c.URL, &s.c.Title, &s.c.Description,
		&s.c.OrganizationName, &s.c.ProgramName, &s.provider, &s.c.Query, &s.c.ConfidenceScore, &s.status, &s.c.Reasoning,
		&s.c.CreatedAt, &s.c.ReviewedAt, &s.reviewedBy, &s.rejectionReason,
	}
}

func (s *candidateScanDest) finalize() *domain.Candidate {
	s.c.Provider = domain.ProviderID(s.provider)
	s.c.Status = domain.CandidateStatus(s.status)
	s.c.ReviewedBy = derefString(s.reviewedBy)
	s.c.RejectionReason = derefString(s.rejectionReason)
	return &s.c
}

func scanCandidate(row pgx.Row) (*domain.Candidate, error) {
	var dest candidateScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize(), nil
}
