package scoring

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/northstar/funding-discovery/internal/domain"
)

// Judge scores one aspect of a search hit's metadata.
// Scores are in [0,1] with a scale of two digits.
type Judge interface {
	Name() string
	Weight() decimal.Decimal
	Evaluate(title, description, url string) domain.JudgeScore
}

var (
	one        = decimal.NewFromInt(1)
	half       = decimal.RequireFromString("0.50")
	credFactor = decimal.NewFromInt(2)
)

// ratioScore returns min(1, hits/saturation) rounded half-up to two digits.
func ratioScore(hits, saturation int) decimal.Decimal {
	if hits <= 0 {
		return decimal.Zero.Round(2)
	}
	s := decimal.NewFromInt(int64(hits)).DivRound(decimal.NewFromInt(int64(saturation)), 2)
	if s.GreaterThan(one) {
		return one.Round(2)
	}
	return s
}

func newScore(j Judge, score decimal.Decimal, explanation string) domain.JudgeScore {
	return domain.JudgeScore{
		JudgeName:   j.Name(),
		Score:       score,
		Weight:      j.Weight(),
		Explanation: explanation,
	}
}

func describeHits(noun string, hits []string) string {
	if len(hits) == 0 {
		return "no " + noun + " keywords"
	}
	return fmt.Sprintf("matched %d %s keyword types: %s", len(hits), noun, strings.Join(hits, ", "))
}

var fundingKeywords = []keywordType{
	{"grant", []string{"grant", "безвъзмездн"}},
	{"scholarship", []string{"scholarship", "bursar", "стипенди"}},
	{"fellowship", []string{"fellowship"}},
	{"funding", []string{"funding", "fund ", "funds ", "subsid", "endowment", "финансиран"}},
	{"award", []string{"award"}},
	{"aid", []string{"aid ", "stipend"}},
	{"prize", []string{"prize"}},
	{"financial support", []string{"financial support", "financial assistance", "sponsorship"}},
}

// FundingKeywordJudge rewards distinct funding vocabulary. Three distinct
// keyword types saturate the score.
type FundingKeywordJudge struct{}

func (FundingKeywordJudge) Name() string            { return "FundingKeywordJudge" }
func (FundingKeywordJudge) Weight() decimal.Decimal { return decimal.RequireFromString("2.00") }

func (j FundingKeywordJudge) Evaluate(title, description, _ string) domain.JudgeScore {
	hits := matchTypes(normalizeText(title, description), fundingKeywords)
	return newScore(j, ratioScore(len(hits), 3), describeHits("funding", hits))
}

// DomainCredibilityJudge maps the URL's TLD tier onto [0,1] around a neutral 0.50.
type DomainCredibilityJudge struct{}

func (DomainCredibilityJudge) Name() string            { return "DomainCredibilityJudge" }
func (DomainCredibilityJudge) Weight() decimal.Decimal { return decimal.RequireFromString("1.50") }

func (j DomainCredibilityJudge) Evaluate(_, _, url string) domain.JudgeScore {
	if HasSuspiciousPattern(url) {
		return newScore(j, decimal.Zero.Round(2), "suspicious pattern in hostname")
	}

	tier, tldScore := Classify(url)
	score := half.Add(tldScore.Mul(credFactor))
	if score.LessThan(decimal.Zero) {
		score = decimal.Zero
	}
	if score.GreaterThan(one) {
		score = one
	}

	explanation := fmt.Sprintf("unknown TLD (%s)", tldScore.StringFixed(2))
	if tier != TierUnknown {
		explanation = fmt.Sprintf("tier %d TLD .%s (%s)", tier, TLD(url), tldScore.StringFixed(2))
	}
	return newScore(j, score.Round(2), explanation)
}

var geographicKeywords = []keywordType{
	{"bulgaria", []string{"bulgaria", "българ", "sofia", "софия"}},
	{"eastern europe", []string{"eastern europe", "central europe", "cee region"}},
	{"balkans", []string{"balkan", "балкан", "southeast europe", "south east europe"}},
	{"european union", []string{"european union", "eu ", "europe", "европ"}},
	{"romania", []string{"romania"}},
	{"poland", []string{"poland", "polish"}},
	{"czech", []string{"czech"}},
	{"hungary", []string{"hungar"}},
	{"greece", []string{"greece", "greek"}},
	{"north macedonia", []string{"macedonia"}},
	{"serbia", []string{"serbia"}},
}

// GeographicRelevanceJudge rewards mentions of the target region.
type GeographicRelevanceJudge struct{}

func (GeographicRelevanceJudge) Name() string            { return "GeographicRelevanceJudge" }
func (GeographicRelevanceJudge) Weight() decimal.Decimal { return decimal.RequireFromString("1.00") }

func (j GeographicRelevanceJudge) Evaluate(title, description, _ string) domain.JudgeScore {
	hits := matchTypes(normalizeText(title, description), geographicKeywords)
	return newScore(j, ratioScore(len(hits), 2), describeHits("geographic", hits))
}

var organizationKeywords = []keywordType{
	{"foundation", []string{"foundation", "фондация"}},
	{"ngo", []string{"ngo ", "ngos ", "non governmental", "nongovernmental"}},
	{"charity", []string{"charit"}},
	{"nonprofit", []string{"nonprofit", "non profit", "not for profit"}},
	{"association", []string{"association", "сдружение"}},
	{"university", []string{"university", "университет"}},
	{"ministry", []string{"ministry", "министерств"}},
	{"agency", []string{"agency", "commission", "council"}},
	{"trust", []string{"trust "}},
}

// OrganizationTypeJudge rewards vocabulary of funding bodies. Two hits give
// 0.50 and four saturate the score.
type OrganizationTypeJudge struct{}

func (OrganizationTypeJudge) Name() string            { return "OrganizationTypeJudge" }
func (OrganizationTypeJudge) Weight() decimal.Decimal { return decimal.RequireFromString("0.80") }

func (j OrganizationTypeJudge) Evaluate(title, description, _ string) domain.JudgeScore {
	hits := matchTypes(normalizeText(title, description), organizationKeywords)
	return newScore(j, ratioScore(len(hits), 4), describeHits("organization", hits))
}

// DefaultJudges returns the standard judging panel.
func DefaultJudges() []Judge {
	return []Judge{
		FundingKeywordJudge{},
		DomainCredibilityJudge{},
		GeographicRelevanceJudge{},
		OrganizationTypeJudge{},
	}
}
