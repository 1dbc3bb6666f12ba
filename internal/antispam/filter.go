// Package antispam flags search hits from SEO spam, gambling and essay-mill
// sites before they reach scoring. All checks are local and allocation-light.
package antispam

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/northstar/funding-discovery/internal/domain"
)

var perDetection = decimal.RequireFromString("0.35")

type detector struct {
	indicator domain.SpamIndicator
	reason    string
	detect    func(domainName, title, description string) bool
}

// Filter runs every detector over a result. A result is spam when any detector
// fires; the first one that fires becomes the primary indicator.
type Filter struct {
	detectors []detector
	logger    zerolog.Logger
}

// NewFilter creates a Filter with the four standard detectors.
func NewFilter(logger zerolog.Logger) *Filter {
	return &Filter{
		logger: logger.With().Str("component", "antispam").Logger(),
		detectors: []detector{
			{
				indicator: domain.SpamIndicatorKeywordStuffing,
				reason:    "keyword stuffing: unique token ratio below 0.5",
				detect: func(_, title, description string) bool {
					return KeywordStuffing(title + " " + description)
				},
			},
			{
				indicator: domain.SpamIndicatorDomainMetadataMismatch,
				reason:    "domain keywords unrelated to page metadata (similarity below 0.15)",
				detect:    DomainMetadataMismatch,
			},
			{
				indicator: domain.SpamIndicatorUnnaturalKeywordList,
				reason:    "unnatural keyword list: fewer than 2 common words",
				detect: func(_, title, description string) bool {
					return UnnaturalKeywordList(title + " " + description)
				},
			},
			{
				indicator: domain.SpamIndicatorCrossCategory,
				reason:    "gambling or essay-mill domain with education funding content",
				detect:    CrossCategory,
			},
		},
	}
}

// Analyze returns the spam verdict for r. Confidence grows by 0.35 per
// detector that fired, capped at 1.00.
func (f *Filter) Analyze(r domain.SearchResult) domain.SpamAnalysisResult {
	start := time.Now()

	domainName := r.DomainName
	if domainName == "" {
		domainName, _ = domain.NormalizeDomain(r.URL)
	}

	result := domain.SpamAnalysisResult{Confidence: decimal.Zero.Round(2)}
	for _, d := range f.detectors {
		if !d.detect(domainName, r.Title, r.Description) {
			continue
		}
		if !result.IsSpam {
			result.IsSpam = true
			result.PrimaryIndicator = d.indicator
			result.RejectionReason = d.reason
		}
		result.Indicators = append(result.Indicators, d.indicator)
	}

	if result.IsSpam {
		conf := perDetection.Mul(decimal.NewFromInt(int64(len(result.Indicators))))
		if conf.GreaterThan(decimal.NewFromInt(1)) {
			conf = decimal.NewFromInt(1)
		}
		result.Confidence = conf.Round(2)

		f.logger.Debug().
			Str("domain", domainName).
			Str("indicator", string(result.PrimaryIndicator)).
			Int("detections", len(result.Indicators)).
			Dur("duration", time.Since(start)).
			Msg("spam detected")
	}
	return result
}
