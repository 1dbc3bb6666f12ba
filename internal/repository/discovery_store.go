package repository

import (
	"context"
	"fmt"

	"github.com/northstar/funding-discovery/internal/domain"
)

// PgDiscoveryStore is the candidate sink of the result pipeline. It registers
// the candidate's domain, folds the score into the domain's quality counters
// and inserts the candidate in one transaction.
type PgDiscoveryStore struct {
	db DBTX
}

// NewPgDiscoveryStore creates a discovery store on db.
func NewPgDiscoveryStore(db DBTX) *PgDiscoveryStore {
	return &PgDiscoveryStore{db: db}
}

// Persist stores c and sets c.DomainID. The bool reports a newly registered
// domain. Nothing is written when any step fails.
func (s *PgDiscoveryStore) Persist(ctx context.Context, c *domain.Candidate) (bool, error) {
	if c == nil || c.DomainName == "" {
		return false, domain.NewValidationError("domain_name", "candidate domain is required")
	}

	var created bool
	err := withTx(ctx, s.db, func(tx DBTX) error {
		domains := NewPgDomainRepository(tx)
		candidates := NewPgCandidateRepository(tx)

		d, inserted, err := domains.Register(ctx, c.DomainName, c.SessionID)
		if err != nil {
			return err
		}
		if err := domains.RecordQuality(ctx, d.ID, c.ConfidenceScore, c.IsHighConfidence()); err != nil {
			return err
		}

		c.DomainID = d.ID
		if err := candidates.Save(ctx, c); err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to persist candidate for %s: %w", c.DomainName, err)
	}
	return created, nil
}
