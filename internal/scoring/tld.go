package scoring

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/idna"

	"github.com/northstar/funding-discovery/internal/domain"
)

// TLDTier is a credibility bucket for a domain suffix.
type TLDTier int

const (
	TierUnknown TLDTier = iota
	Tier1
	Tier2
	Tier3
	Tier4
	Tier5
)

var (
	tier1Score = decimal.RequireFromString("0.20")
	tier2Score = decimal.RequireFromString("0.15")
	tier3Score = decimal.RequireFromString("0.08")
	zeroScore  = decimal.Zero
)

var tier1TLDs = map[string]bool{
	"ngo": true, "ong": true, "foundation": true, "charity": true, "gov": true, "edu": true,
}

// Second-level suffixes that are credible even though their final label is a ccTLD.
var tier1SecondLevel = map[string]bool{
	"gov.bg": true, "gov.ro": true, "gov.pl": true, "gov.cz": true, "gov.de": true, "gov.fr": true,
	"edu.bg": true, "edu.ro": true, "edu.pl": true, "edu.cz": true,
	"ac.bg": true, "ac.ro": true, "ac.pl": true, "ac.cz": true,
	"europa.eu": true,
}

// Target-region ccTLDs, Cyrillic IDN variants included.
var tier2TLDs = map[string]bool{
	"org": true, "eu": true, "ею": true, "bg": true, "бг": true,
	"ro": true, "pl": true, "cz": true, "de": true, "fr": true, "gr": true,
	"hu": true, "at": true, "it": true, "es": true, "fund": true, "gives": true,
}

var tier3TLDs = map[string]bool{
	"com": true, "net": true, "info": true, "education": true,
}

var tier4TLDs = map[string]bool{
	"biz": true, "co": true, "io": true, "me": true,
}

var tier5TLDs = map[string]decimal.Decimal{
	"tk":    decimal.RequireFromString("-0.30"),
	"ml":    decimal.RequireFromString("-0.30"),
	"ga":    decimal.RequireFromString("-0.30"),
	"cf":    decimal.RequireFromString("-0.30"),
	"gq":    decimal.RequireFromString("-0.30"),
	"xyz":   decimal.RequireFromString("-0.20"),
	"top":   decimal.RequireFromString("-0.20"),
	"icu":   decimal.RequireFromString("-0.20"),
	"buzz":  decimal.RequireFromString("-0.20"),
	"loan":  decimal.RequireFromString("-0.25"),
	"click": decimal.RequireFromString("-0.15"),
	"cam":   decimal.RequireFromString("-0.15"),
	"pw":    decimal.RequireFromString("-0.15"),
	"shop":  decimal.RequireFromString("-0.10"),
}

// suspiciousPatterns are hostname fragments typical of scam landing pages.
var suspiciousPatterns = []string{
	"click-here", "free-money", "get-rich", "cash-now", "win-now", "fast-cash", "easy-money",
}

// SpamTLDs returns the Tier 5 suffixes, the default block-list of the result pipeline.
func SpamTLDs() []string {
	out := make([]string, 0, len(tier5TLDs))
	for tld := range tier5TLDs {
		out = append(out, tld)
	}
	return out
}

// Classify returns the tier and credibility score of the URL's suffix.
// Unknown, invalid and empty URLs score 0.00.
func Classify(rawURL string) (TLDTier, decimal.Decimal) {
	labels := hostLabels(rawURL)
	if len(labels) < 2 {
		return TierUnknown, zeroScore
	}

	last := labels[len(labels)-1]
	secondLevel := labels[len(labels)-2] + "." + last
	switch {
	case tier1SecondLevel[secondLevel], tier1TLDs[last]:
		return Tier1, tier1Score
	case tier2TLDs[last]:
		return Tier2, tier2Score
	case tier3TLDs[last]:
		return Tier3, tier3Score
	case tier4TLDs[last]:
		return Tier4, zeroScore
	}
	if s, ok := tier5TLDs[last]; ok {
		return Tier5, s
	}
	return TierUnknown, zeroScore
}

// TLDScore returns the credibility score of the URL's suffix.
func TLDScore(rawURL string) decimal.Decimal {
	_, s := Classify(rawURL)
	return s
}

// TLD returns the final label of the URL's host in Unicode form, or "" if there is none.
func TLD(rawURL string) string {
	labels := hostLabels(rawURL)
	if len(labels) < 2 {
		return ""
	}
	return labels[len(labels)-1]
}

// HasSuspiciousPattern reports whether the URL's host contains a scam-style fragment.
func HasSuspiciousPattern(rawURL string) bool {
	host, err := domain.NormalizeDomain(rawURL)
	if err != nil {
		return false
	}
	for _, p := range suspiciousPatterns {
		if strings.Contains(host, p) {
			return true
		}
	}
	return false
}

// hostLabels returns the Unicode labels of the URL's host, so punycode and
// Cyrillic spellings of the same suffix share one table entry.
func hostLabels(rawURL string) []string {
	host, err := domain.NormalizeDomain(rawURL)
	if err != nil {
		return nil
	}
	if u, err := idna.Lookup.ToUnicode(host); err == nil {
		host = u
	}
	return strings.Split(host, ".")
}
