//go:build integration

package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstar/funding-discovery/internal/database/databasetest"
	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/providers"
	"github.com/northstar/funding-discovery/internal/repository"
)

func TestDiscoveryFlow(t *testing.T) {
	db := databasetest.StartMigrated(t)
	ctx := context.Background()

	sessions := repository.NewPgSessionRepository(db)
	domains := repository.NewPgDomainRepository(db)
	candidates := repository.NewPgCandidateRepository(db)
	store := repository.NewPgDiscoveryStore(db)

	session := domain.NewDiscoverySession(uuid.New(), domain.SessionTypeManual, "bulgaria education grants", "")
	require.NoError(t, sessions.Create(ctx, session))
	require.NoError(t, sessions.Create(ctx, session), "create is idempotent")

	newCandidate := func(url string, confidence string, status domain.CandidateStatus) *domain.Candidate {
		return &domain.Candidate{
			ID:              uuid.New(),
			SessionID:       session.ID,
			DomainName:      "sofia-foundation.bg",
			URL:             url,
			Title:           "Scholarship Program - Sofia Foundation",
			Provider:        domain.ProviderBrave,
			Query:           session.KeywordQuery,
			ConfidenceScore: decimal.RequireFromString(confidence),
			Status:          status,
			CreatedAt:       time.Now().UTC(),
		}
	}

	high := newCandidate("https://sofia-foundation.bg/a", "0.80", domain.CandidateStatusPendingCrawl)
	created, err := store.Persist(ctx, high)
	require.NoError(t, err)
	assert.True(t, created)

	low := newCandidate("https://sofia-foundation.bg/b", "0.40", domain.CandidateStatusSkippedLowConfidence)
	created, err = store.Persist(ctx, low)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, high.DomainID, low.DomainID)

	d, err := domains.FindByName(ctx, "sofia-foundation.bg")
	require.NoError(t, err)
	assert.Equal(t, 2, d.TotalOccurrences)
	assert.Equal(t, 1, d.HighQualityCount)
	assert.Equal(t, 1, d.LowQualityCount)
	assert.Equal(t, "0.60", d.AverageConfidence.StringFixed(2))
	assert.Equal(t, domain.DomainStatusProcessedHighQuality, d.Status)

	minConfidence := decimal.RequireFromString("0.60")
	page, total, err := candidates.List(ctx, repository.CandidateFilter{MinConfidence: &minConfidence})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, page, 1)
	assert.Equal(t, "sofia-foundation.bg", page[0].DomainName)

	approved, err := candidates.UpdateStatus(ctx, high.ID, domain.CandidateStatusApproved, "reviewer@northstar.org", "")
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateStatusApproved, approved.Status)

	_, err = candidates.UpdateStatus(ctx, high.ID, domain.CandidateStatusRejected, "reviewer@northstar.org", "late")
	assert.True(t, errors.Is(err, domain.ErrInvalidStatusTransition))

	blacklisted, err := domains.Blacklist(ctx, "sofia-foundation.bg", "ops@northstar.org", "duplicate listing")
	require.NoError(t, err)
	assert.True(t, blacklisted.IsBlacklisted)
	isBlacklisted, err := domains.IsBlacklisted(ctx, "sofia-foundation.bg")
	require.NoError(t, err)
	assert.True(t, isBlacklisted)

	require.NoError(t, sessions.AddProviderErrors(ctx, session.ID, []domain.ProviderError{
		*domain.NewProviderError(domain.ProviderSerper, domain.ErrorKindAuth, "missing api key", nil),
	}))
	require.NoError(t, sessions.Complete(ctx, session.ID, domain.SessionOutcome{
		Status:            domain.SessionStatusPartialSuccess,
		ProviderResults:   map[domain.ProviderID]int{domain.ProviderBrave: 2},
		TotalResults:      2,
		NewDomains:        1,
		CandidatesCreated: 2,
	}))

	got, err := sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusPartialSuccess, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 2, got.ProviderResults[domain.ProviderBrave])
	require.Len(t, got.ProviderErrors, 1)
	assert.Equal(t, domain.ErrorKindAuth, got.ProviderErrors[0].Kind)
}

func TestUsageLedger(t *testing.T) {
	db := databasetest.StartMigrated(t)
	ctx := context.Background()
	usage := repository.NewPgUsageRepository(db)

	now := time.Now().UTC()
	for _, at := range []time.Time{now.Add(-25 * time.Hour), now.Add(-time.Hour), now} {
		require.NoError(t, usage.RecordUsage(ctx, providers.UsageRecord{
			Provider: domain.ProviderBrave,
			Query:    "bulgaria grants",
			Success:  true,
			CalledAt: at,
		}))
	}

	calls, err := usage.CallsSince(ctx, domain.ProviderBrave, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, calls, 2)
}
