package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/providers"
)

func TestPgDiscoveryStore_Persist(t *testing.T) {
	registerCols := append(append([]string{}, domainColumnNames...), "inserted")

	t.Run("commits all three writes", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		c := newTestCandidate()
		c.DomainID = uuid.Nil
		domainID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO domains").
			WithArgs(pgxmock.AnyArg(), c.DomainName, domain.DomainStatusDiscovered, &c.SessionID, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows(registerCols).
				AddRow(append(domainRow(domainID, c.DomainName, "DISCOVERED", 1, false), true)...))
		mock.ExpectExec("UPDATE domains SET").
			WithArgs(domainID, 1, 0, c.ConfidenceScore, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO funding_candidates").
			WithArgs(anyArgs(candidateInsertArgs)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		store := NewPgDiscoveryStore(mock)
		created, err := store.Persist(context.Background(), c)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, domainID, c.DomainID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when the candidate insert fails", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		c := newTestCandidate()
		c.Status = domain.CandidateStatusSkippedLowConfidence
		domainID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO domains").
			WithArgs(anyArgs(5)...).
			WillReturnRows(pgxmock.NewRows(registerCols).
				AddRow(append(domainRow(domainID, c.DomainName, "PROCESSED_HIGH_QUALITY", 5, false), false)...))
		mock.ExpectExec("UPDATE domains SET").
			WithArgs(domainID, 0, 1, c.ConfidenceScore, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO funding_candidates").
			WithArgs(anyArgs(candidateInsertArgs)...).
			WillReturnError(errors.New("connection reset by peer"))
		mock.ExpectRollback()

		store := NewPgDiscoveryStore(mock)
		created, err := store.Persist(context.Background(), c)
		require.Error(t, err)
		assert.False(t, created)
		assert.Contains(t, err.Error(), c.DomainName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgUsageRepository(t *testing.T) {
	t.Run("records a call", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		sessionID := uuid.New()
		calledAt := time.Now().UTC()
		kind := "TIMEOUT"
		mock.ExpectExec("INSERT INTO provider_api_usage").
			WithArgs(domain.ProviderTavily, &sessionID, "bulgaria grants", 0, false, &kind, int64(5000), calledAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewPgUsageRepository(mock)
		err = repo.RecordUsage(context.Background(), providers.UsageRecord{
			Provider:  domain.ProviderTavily,
			SessionID: sessionID,
			Query:     "bulgaria grants",
			ErrorKind: domain.ErrorKindTimeout,
			Duration:  5 * time.Second,
			CalledAt:  calledAt,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reads calls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		since := time.Now().Add(-24 * time.Hour)
		t1, t2 := since.Add(time.Hour), since.Add(2*time.Hour)
		mock.ExpectQuery("SELECT called_at FROM provider_api_usage").
			WithArgs(domain.ProviderBrave, since).
			WillReturnRows(pgxmock.NewRows([]string{"called_at"}).AddRow(t1).AddRow(t2))

		repo := NewPgUsageRepository(mock)
		calls, err := repo.CallsSince(context.Background(), domain.ProviderBrave, since)
		require.NoError(t, err)
		assert.Equal(t, []time.Time{t1, t2}, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
