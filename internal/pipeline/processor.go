// Package pipeline turns raw provider hits into scored funding candidates.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/northstar/funding-discovery/internal/antispam"
	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
	"github.com/northstar/funding-discovery/internal/registry"
	"github.com/northstar/funding-discovery/internal/scoring"
)

// Outcome labels for the results-processed metric.
const (
	OutcomeInvalidURL     = "invalid_url"
	OutcomeSpam           = "spam"
	OutcomeDuplicate      = "duplicate"
	OutcomeBlacklisted    = "blacklisted"
	OutcomeHighConfidence = "high_confidence"
	OutcomeLowConfidence  = "low_confidence"
	OutcomePersistFailed  = "persist_failed"
)

// CandidateSink persists a candidate together with its domain. Implementations
// upsert the domain, update its quality counters and insert the candidate in
// one transaction, filling c.DomainID. The bool reports a newly created domain.
type CandidateSink interface {
	Persist(ctx context.Context, c *domain.Candidate) (bool, error)
}

// DomainRegistry is the part of the registry the processor consults.
type DomainRegistry interface {
	IsBlacklisted(ctx context.Context, name string) bool
	NewRun() *registry.Run
}

// SpamFilter analyzes a result for content spam.
type SpamFilter interface {
	Analyze(r domain.SearchResult) domain.SpamAnalysisResult
}

// Config configures the Processor.
type Config struct {
	// SpamTLDs are blocked outright, without the slash or dot: "xyz", "tk".
	SpamTLDs []string
}

// Processor runs the per-result stages. It is safe for concurrent use; each
// Process call gets its own within-run seen set.
type Processor struct {
	registry DomainRegistry
	spam     SpamFilter
	scorer   *scoring.Scorer
	sink     CandidateSink
	spamTLDs map[string]bool
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewProcessor creates a Processor. metrics may be nil.
func NewProcessor(reg DomainRegistry, spam SpamFilter, scorer *scoring.Scorer, sink CandidateSink, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Processor {
	tlds := make(map[string]bool, len(cfg.SpamTLDs))
	for _, t := range cfg.SpamTLDs {
		tlds[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(t)), ".")] = true
	}
	if spam == nil {
		spam = antispam.NewFilter(logger)
	}
	return &Processor{
		registry: reg,
		spam:     spam,
		scorer:   scorer,
		sink:     sink,
		spamTLDs: tlds,
		logger:   logger.With().Str("component", "result_pipeline").Logger(),
		metrics:  metrics,
	}
}

// Process runs every result through the pipeline and returns the counters.
func (p *Processor) Process(ctx context.Context, sessionID uuid.UUID, results []domain.SearchResult) domain.ProcessingStatistics {
	return p.ProcessWithObserver(ctx, sessionID, results, nil)
}

// ProcessWithObserver is Process with a callback for every persisted candidate.
//
// For each result, in order:
//  1. Extract and validate the domain.
//  2. Reject block-listed spam TLDs.
//  3. Run the content anti-spam filter.
//  4. Skip domains already seen in this run.
//  5. Skip blacklisted domains.
//  6. Score the metadata and classify against the threshold.
//  7. Persist the candidate, PENDING_CRAWL or SKIPPED_LOW_CONFIDENCE.
//
// Every result increments exactly one outcome counter. Nothing here fails the
// run: a persistence error is counted and processing continues.
func (p *Processor) ProcessWithObserver(ctx context.Context, sessionID uuid.UUID, results []domain.SearchResult, observe func(*domain.Candidate)) domain.ProcessingStatistics {
	var stats domain.ProcessingStatistics
	if len(results) == 0 {
		return stats
	}

	logger := p.logger.With().Str("session_id", sessionID.String()).Logger()
	run := p.registry.NewRun()
	start := time.Now()

	for _, r := range results {
		stats.TotalResults++

		name, ok := registry.ExtractDomain(r.URL)
		if !ok {
			stats.InvalidURLsSkipped++
			p.record(OutcomeInvalidURL)
			logger.Debug().Str("url", r.URL).Msg("skipping result with invalid url")
			continue
		}
		r.DomainName = name

		if tld := scoring.TLD(r.URL); p.spamTLDs[tld] {
			stats.SpamFiltered++
			p.record(OutcomeSpam)
			logger.Debug().Str("domain", name).Str("tld", tld).Msg("spam tld blocked")
			continue
		}

		if verdict := p.spam.Analyze(r); verdict.IsSpam {
			stats.SpamFiltered++
			p.record(OutcomeSpam)
			logger.Debug().
				Str("domain", name).
				Str("indicator", string(verdict.PrimaryIndicator)).
				Str("confidence", verdict.Confidence.StringFixed(2)).
				Msg("content spam filtered")
			continue
		}

		if run.IsDuplicateWithinRun(name) {
			stats.DuplicatesSkipped++
			p.record(OutcomeDuplicate)
			continue
		}

		if p.registry.IsBlacklisted(ctx, name) {
			stats.BlacklistedSkipped++
			p.record(OutcomeBlacklisted)
			logger.Debug().Str("domain", name).Msg("blacklisted domain skipped")
			continue
		}

		judgment := p.scorer.Judge(r.Title, r.Description, r.URL)
		if p.metrics != nil {
			p.metrics.RecordConfidence(judgment.ConfidenceScore.InexactFloat64())
		}

		c := newCandidate(sessionID, name, r, judgment)
		created, err := p.sink.Persist(ctx, c)
		if err != nil {
			stats.PersistenceFailures++
			p.record(OutcomePersistFailed)
			domainLogger := observability.WithDomainContext(logger, name, r.URL)
			domainLogger.Error().Err(err).Msg("failed to persist candidate")
			continue
		}

		if created {
			stats.NewDomains++
		}
		stats.TotalCandidatesCreated++
		if judgment.ShouldCrawl {
			stats.HighConfidenceCreated++
			p.record(OutcomeHighConfidence)
		} else {
			stats.LowConfidenceCreated++
			p.record(OutcomeLowConfidence)
		}
		if observe != nil {
			observe(c)
		}
	}

	logger.Info().
		Int("total", stats.TotalResults).
		Int("candidates", stats.TotalCandidatesCreated).
		Int("high_confidence", stats.HighConfidenceCreated).
		Int("spam", stats.SpamFiltered).
		Int("duplicates", stats.DuplicatesSkipped).
		Int("blacklisted", stats.BlacklistedSkipped).
		Int("invalid", stats.InvalidURLsSkipped).
		Int("persist_failures", stats.PersistenceFailures).
		Dur("duration", time.Since(start)).
		Msg("result processing finished")
	return stats
}

func (p *Processor) record(outcome string) {
	if p.metrics != nil {
		p.metrics.RecordResultOutcome(outcome)
	}
}

func newCandidate(sessionID uuid.UUID, name string, r domain.SearchResult, j domain.MetadataJudgment) *domain.Candidate {
	status := domain.CandidateStatusSkippedLowConfidence
	if j.ShouldCrawl {
		status = domain.CandidateStatusPendingCrawl
	}
	return &domain.Candidate{
		ID:               uuid.New(),
		SessionID:        sessionID,
		DomainName:       name,
		URL:              r.URL,
		Title:            r.Title,
		Description:      r.Description,
		OrganizationName: j.OrganizationName,
		ProgramName:      j.ProgramName,
		Provider:         r.Provider,
		Query:            r.Query,
		ConfidenceScore:  j.ConfidenceScore,
		Status:           status,
		Reasoning:        j.Reasoning,
		CreatedAt:        time.Now().UTC(),
	}
}
