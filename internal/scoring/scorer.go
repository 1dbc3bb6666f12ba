// Package scoring judges search hit metadata and produces a decimal
// confidence score used to decide whether a candidate is crawled.
package scoring

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/northstar/funding-discovery/internal/domain"
)

const (
	UnknownOrganization = "Unknown Organization"
	UnknownProgram      = "Unknown Program"
)

// DefaultThreshold is the inclusive crawl boundary.
var DefaultThreshold = decimal.RequireFromString("0.60")

// Scorer runs a judging panel and combines the weighted scores.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	judges    []Judge
	threshold decimal.Decimal
}

// NewScorer creates a scorer with the given crawl threshold. Without
// explicit judges it uses DefaultJudges.
func NewScorer(threshold decimal.Decimal, judges ...Judge) *Scorer {
	if len(judges) == 0 {
		judges = DefaultJudges()
	}
	return &Scorer{judges: judges, threshold: threshold}
}

// Threshold returns the crawl boundary.
func (s *Scorer) Threshold() decimal.Decimal {
	return s.threshold
}

// Judge scores one search hit.
func (s *Scorer) Judge(title, description, url string) domain.MetadataJudgment {
	scores := make([]domain.JudgeScore, 0, len(s.judges))
	for _, j := range s.judges {
		scores = append(scores, j.Evaluate(title, description, url))
	}

	confidence := Combine(scores)
	org, program := ExtractNames(title)
	name, _ := domain.NormalizeDomain(url)

	return domain.MetadataJudgment{
		DomainName:       name,
		ConfidenceScore:  confidence,
		ShouldCrawl:      confidence.GreaterThanOrEqual(s.threshold),
		JudgeScores:      scores,
		OrganizationName: org,
		ProgramName:      program,
		Reasoning:        reasoning(confidence, scores),
	}
}

// Combine returns Σ(score×weight)/Σ(weight) rounded half-up to two digits and
// capped at 1.00. An empty panel scores 0.00.
func Combine(scores []domain.JudgeScore) decimal.Decimal {
	weighted := decimal.Zero
	weights := decimal.Zero
	for _, js := range scores {
		weighted = weighted.Add(js.Score.Mul(js.Weight))
		weights = weights.Add(js.Weight)
	}
	if weights.IsZero() {
		return decimal.Zero.Round(2)
	}

	confidence := weighted.DivRound(weights, 2)
	if confidence.GreaterThan(one) {
		return one.Round(2)
	}
	return confidence
}

func reasoning(confidence decimal.Decimal, scores []domain.JudgeScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall confidence: %s.", confidence.StringFixed(2))
	for _, js := range scores {
		fmt.Fprintf(&b, " %s: %s (%s).", js.JudgeName, js.Score.StringFixed(2), js.Explanation)
	}
	return b.String()
}

// titleSeparator matches "|" and any dash. isSeparator decides which dashes
// split the title.
var titleSeparator = regexp.MustCompile(`\||[-–—]`)

// isSeparator reports whether the dash at title[start:end] separates program
// from organization. A dash with whitespace on either side or an uppercase
// letter after it separates ("Grant-Sofia Foundation"); a dash joining
// lowercase word parts ("non-profit") does not.
func isSeparator(title string, start, end int) bool {
	if title[start] == '|' {
		return true
	}
	if start == 0 || end == len(title) {
		return true
	}
	before, _ := utf8.DecodeLastRuneInString(title[:start])
	after, _ := utf8.DecodeRuneInString(title[end:])
	return unicode.IsSpace(before) || unicode.IsSpace(after) || unicode.IsUpper(after)
}

func splitTitle(title string) []string {
	var parts []string
	last := 0
	for _, loc := range titleSeparator.FindAllStringIndex(title, -1) {
		if !isSeparator(title, loc[0], loc[1]) {
			continue
		}
		parts = append(parts, title[last:loc[0]])
		last = loc[1]
	}
	return append(parts, title[last:])
}

// ExtractNames derives the organization and program from a result title.
func ExtractNames(title string) (organization, program string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return UnknownOrganization, UnknownProgram
	}

	var segments []string
	for _, seg := range splitTitle(title) {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}

	switch len(segments) {
	case 0:
		return UnknownOrganization, UnknownProgram
	case 1:
		return UnknownOrganization, segments[0]
	default:
		return segments[len(segments)-1], segments[0]
	}
}
