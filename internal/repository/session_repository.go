package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/northstar/funding-discovery/internal/domain"
)

// SessionStore persists discovery sessions.
type SessionStore interface {
	// Create inserts a RUNNING session. Creating the same ID twice is a no-op,
	// so workflow activity retries are safe.
	Create(ctx context.Context, s *domain.DiscoverySession) error

	// Update writes the counters of a running session.
	Update(ctx context.Context, s *domain.DiscoverySession) error

	// Complete moves a RUNNING session to its terminal state. Completing an
	// already completed session with the same status is a no-op.
	Complete(ctx context.Context, id uuid.UUID, outcome domain.SessionOutcome) error

	// Get returns the session with its provider errors, or domain.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.DiscoverySession, error)

	// AddProviderErrors appends provider errors to the session.
	AddProviderErrors(ctx context.Context, id uuid.UUID, errs []domain.ProviderError) error
}

var _ SessionStore = (*PgSessionRepository)(nil)

const sessionColumns = `id, session_type, status, keyword_query, ai_query, started_at, completed_at,
	provider_results, total_results, new_domains, duplicates_skipped, spam_filtered,
	candidates_created, error_messages`

// PgSessionRepository is the PostgreSQL SessionStore.
type PgSessionRepository struct {
	db DBTX
}

// NewPgSessionRepository creates a session repository on db.
func NewPgSessionRepository(db DBTX) *PgSessionRepository {
	return &PgSessionRepository{db: db}
}

// Create inserts s unless a session with its ID already exists.
func (r *PgSessionRepository) Create(ctx context.Context, s *domain.DiscoverySession) error {
	if s == nil || s.ID == uuid.Nil {
		return domain.NewValidationError("id", "session ID is required")
	}
	if strings.TrimSpace(s.KeywordQuery) == "" {
		return domain.NewValidationError("keyword_query", "keyword query is required")
	}

	providerResults, err := marshalProviderResults(s.ProviderResults)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO discovery_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.Exec(ctx, query,
		s.ID, s.Type, s.Status, s.KeywordQuery, nullString(s.AIQuery), s.StartedAt, s.CompletedAt,
		providerResults, s.TotalResults, s.NewDomains, s.DuplicatesSkipped, s.SpamFiltered,
		s.CandidatesCreated, nonNilStrings(s.ErrorMessages),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Update writes the counters of a running session.
func (r *PgSessionRepository) Update(ctx context.Context, s *domain.DiscoverySession) error {
	if s == nil || s.ID == uuid.Nil {
		return domain.NewValidationError("id", "session ID is required")
	}

	providerResults, err := marshalProviderResults(s.ProviderResults)
	if err != nil {
		return err
	}

	query := `
		UPDATE discovery_sessions SET
			provider_results = $2,
			total_results = $3,
			new_domains = $4,
			duplicates_skipped = $5,
			spam_filtered = $6,
			candidates_created = $7,
			error_messages = $8
		WHERE id = $1 AND status = 'RUNNING'`

	tag, err := r.db.Exec(ctx, query,
		s.ID, providerResults, s.TotalResults, s.NewDomains, s.DuplicatesSkipped,
		s.SpamFiltered, s.CandidatesCreated, nonNilStrings(s.ErrorMessages),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.explainMissedUpdate(ctx, s.ID, domain.SessionStatusRunning)
	}
	return nil
}

// Complete moves a RUNNING session to outcome.Status.
func (r *PgSessionRepository) Complete(ctx context.Context, id uuid.UUID, outcome domain.SessionOutcome) error {
	if !outcome.Status.IsTerminal() {
		return domain.NewValidationError("status", fmt.Sprintf("%s is not a terminal status", outcome.Status))
	}

	providerResults, err := marshalProviderResults(outcome.ProviderResults)
	if err != nil {
		return err
	}

	query := `
		UPDATE discovery_sessions SET
			status = $2,
			completed_at = $3,
			provider_results = $4,
			total_results = $5,
			new_domains = $6,
			duplicates_skipped = $7,
			spam_filtered = $8,
			candidates_created = $9,
			error_messages = $10
		WHERE id = $1 AND status = 'RUNNING'`

	tag, err := r.db.Exec(ctx, query,
		id, outcome.Status, time.Now().UTC(), providerResults, outcome.TotalResults,
		outcome.NewDomains, outcome.DuplicatesSkipped, outcome.SpamFiltered,
		outcome.CandidatesCreated, nonNilStrings(outcome.ErrorMessages),
	)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.explainMissedUpdate(ctx, id, outcome.Status)
	}
	return nil
}

// explainMissedUpdate tells a missing session from one in another state. A
// session already in want is not an error.
func (r *PgSessionRepository) explainMissedUpdate(ctx context.Context, id uuid.UUID, want domain.SessionStatus) error {
	var current string
	err := r.db.QueryRow(ctx, `SELECT status FROM discovery_sessions WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("session", id.String())
		}
		return fmt.Errorf("failed to get session status: %w", err)
	}
	if domain.SessionStatus(current) == want {
		return nil
	}
	return fmt.Errorf("session %s is %s, cannot move to %s: %w",
		id, current, want, domain.ErrInvalidStatusTransition)
}

// Get returns the session with its provider errors in occurrence order.
func (r *PgSessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.DiscoverySession, error) {
	var (
		s               domain.DiscoverySession
		sessionType     string
		status          string
		aiQuery         *string
		providerResults []byte
	)
	err := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM discovery_sessions WHERE id = $1`, id).Scan(
		&s.ID, &sessionType, &status, &s.KeywordQuery, &aiQuery, &s.StartedAt, &s.CompletedAt,
		&providerResults, &s.TotalResults, &s.NewDomains, &s.DuplicatesSkipped, &s.SpamFiltered,
		&s.CandidatesCreated, &s.ErrorMessages,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("session", id.String())
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.Type = domain.SessionType(sessionType)
	s.Status = domain.SessionStatus(status)
	s.AIQuery = derefString(aiQuery)
	s.ProviderResults = make(map[domain.ProviderID]int)
	if len(providerResults) > 0 {
		if err := json.Unmarshal(providerResults, &s.ProviderResults); err != nil {
			return nil, fmt.Errorf("failed to unmarshal provider results: %w", err)
		}
	}
	if s.ErrorMessages == nil {
		s.ErrorMessages = []string{}
	}

	s.ProviderErrors, err = r.providerErrors(ctx, id)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PgSessionRepository) providerErrors(ctx context.Context, sessionID uuid.UUID) ([]domain.ProviderError, error) {
	rows, err := r.db.Query(ctx, `
		SELECT provider, kind, message, query, status_code, occurred_at
		FROM provider_errors
		WHERE session_id = $1
		ORDER BY occurred_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider errors: %w", err)
	}
	defer rows.Close()

	var out []domain.ProviderError
	for rows.Next() {
		var (
			pe         domain.ProviderError
			provider   string
			kind       string
			query      *string
			statusCode *int
		)
		if err := rows.Scan(&provider, &kind, &pe.Message, &query, &statusCode, &pe.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan provider error: %w", err)
		}
		pe.Provider = domain.ProviderID(provider)
		pe.Kind = domain.ErrorKind(kind)
		pe.Query = derefString(query)
		if statusCode != nil {
			pe.StatusCode = *statusCode
		}
		out = append(out, pe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider errors: %w", err)
	}
	return out, nil
}

// AddProviderErrors inserts errs in a single statement.
func (r *PgSessionRepository) AddProviderErrors(ctx context.Context, id uuid.UUID, errs []domain.ProviderError) error {
	if len(errs) == 0 {
		return nil
	}

	const cols = 7
	placeholders := make([]string, 0, len(errs))
	args := make([]interface{}, 0, len(errs)*cols)
	for i, pe := range errs {
		base := i * cols
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7))

		var statusCode *int
		if pe.StatusCode > 0 {
			code := pe.StatusCode
			statusCode = &code
		}
		occurredAt := pe.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = time.Now().UTC()
		}
		args = append(args, id, pe.Provider, pe.Kind, pe.Message, nullString(pe.Query), statusCode, occurredAt)
	}

	query := `INSERT INTO provider_errors (session_id, provider, kind, message, query, status_code, occurred_at) VALUES ` +
		strings.Join(placeholders, ", ")

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return domain.NewNotFoundError("session", id.String())
		}
		return fmt.Errorf("failed to add provider errors: %w", err)
	}
	return nil
}

func marshalProviderResults(m map[domain.ProviderID]int) ([]byte, error) {
	if m == nil {
		m = map[domain.ProviderID]int{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider results: %w", err)
	}
	return b, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
