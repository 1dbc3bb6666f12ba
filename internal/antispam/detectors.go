package antispam

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
)

const (
	uniqueRatioThreshold   = 0.5
	similarityThreshold    = 0.15
	minCommonWords         = 2
	minSimilarityTokenSize = 3
)

var commonWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true,
	"for": true, "to": true, "in": true, "with": true,
}

var gamblingKeywords = []string{
	"casino", "poker", "betting", "bet", "win", "lottery", "jackpot", "slots", "gamble", "wager",
}

var essayMillKeywords = []string{
	"essay", "paper", "dissertation", "thesis", "assignment", "homework",
}

var educationKeywords = []string{
	"scholarship", "grant", "funding", "education", "student", "tuition", "financial aid", "college", "university",
}

// KeywordStuffing reports whether fewer than half of the whitespace-separated
// tokens of text are distinct. Blank text is never stuffed.
func KeywordStuffing(text string) bool {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return false
	}

	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}
	return float64(len(unique))/float64(len(tokens)) < uniqueRatioThreshold
}

// UnnaturalKeywordList reports whether text reads as a bare keyword list,
// meaning it contains fewer than two distinct common function words.
func UnnaturalKeywordList(text string) bool {
	words := words(text)
	if len(words) == 0 {
		return false
	}

	found := make(map[string]struct{}, minCommonWords)
	for _, w := range words {
		if commonWords[w] {
			found[w] = struct{}{}
			if len(found) >= minCommonWords {
				return false
			}
		}
	}
	return true
}

// DomainMetadataMismatch reports whether the words of the domain's name are
// unrelated to the title and description (cosine similarity below 0.15).
func DomainMetadataMismatch(domainName, title, description string) bool {
	if strings.TrimSpace(domainName) == "" {
		return false
	}
	metadata := title + " " + description
	if strings.TrimSpace(metadata) == "" {
		return false
	}

	domainVec := wordVector(DomainKeywords(domainName))
	if len(domainVec) == 0 {
		return false
	}
	return cosine(domainVec, wordVector(words(metadata))) < similarityThreshold
}

// CrossCategory reports whether a gambling or essay-mill domain is presenting
// education funding content. Matching is plain substring matching, so
// "alphabet.org" counts as a betting domain.
func CrossCategory(domainName, title, description string) bool {
	d := strings.ToLower(strings.TrimSpace(domainName))
	if d == "" {
		return false
	}
	metadata := strings.ToLower(title + " " + description)
	if strings.TrimSpace(metadata) == "" {
		return false
	}

	if !containsAny(d, gamblingKeywords) && !containsAny(d, essayMillKeywords) {
		return false
	}
	return containsAny(metadata, educationKeywords)
}

// segmentWords are the words a run-together domain label may be split into.
// A word followed by "s" also matches.
var segmentWords = buildSegmentWords(
	gamblingKeywords, essayMillKeywords,
	[]string{
		"scholarship", "grant", "funding", "fund", "education", "student", "tuition", "college", "university",
		"winner", "game", "money", "cash", "free", "fast", "easy", "quick", "best", "cheap", "online",
		"writer", "writing", "help", "service", "research", "council", "foundation", "trust", "charity",
		"program", "science", "academy", "institute", "society", "teacher", "school", "european", "national",
	},
)

func buildSegmentWords(lists ...[]string) map[string]bool {
	out := make(map[string]bool)
	for _, list := range lists {
		for _, w := range list {
			if !strings.Contains(w, " ") {
				out[w] = true
			}
		}
	}
	return out
}

// DomainKeywords returns the words of a domain name without its public
// suffix, e.g. "european-research-council.org" gives european, research,
// council. Labels that run known words together are split at the word
// boundaries, so "casinowinners.com" gives casino, winners.
func DomainKeywords(domainName string) []string {
	d := strings.ToLower(strings.TrimSpace(domainName))
	if suffix, _ := publicsuffix.PublicSuffix(d); suffix != "" && suffix != d {
		d = strings.TrimSuffix(d, "."+suffix)
	}
	var out []string
	for _, token := range strings.FieldsFunc(d, func(r rune) bool { return !unicode.IsLetter(r) }) {
		out = append(out, segment(token)...)
	}
	return out
}

func knownWord(w string) bool {
	return segmentWords[w] || (len(w) > 1 && strings.HasSuffix(w, "s") && segmentWords[strings.TrimSuffix(w, "s")])
}

// segment splits token into the fewest known words that cover it exactly.
// Tokens that cannot be covered are returned whole.
func segment(token string) []string {
	if knownWord(token) {
		return []string{token}
	}
	n := len(token)
	// best[i] is the fewest words covering token[:i], -1 when impossible.
	best := make([]int, n+1)
	prev := make([]int, n+1)
	for i := 1; i <= n; i++ {
		best[i] = -1
		for j := 0; j < i; j++ {
			if best[j] < 0 || !knownWord(token[j:i]) {
				continue
			}
			if best[i] < 0 || best[j]+1 < best[i] {
				best[i] = best[j] + 1
				prev[i] = j
			}
		}
	}
	if best[n] < 0 {
		return []string{token}
	}
	parts := make([]string, best[n])
	for i, k := n, best[n]-1; i > 0; i, k = prev[i], k-1 {
		parts[k] = token[prev[i]:i]
	}
	return parts
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func wordVector(tokens []string) map[string]int {
	v := make(map[string]int, len(tokens))
	for _, t := range tokens {
		if len([]rune(t)) >= minSimilarityTokenSize {
			v[t]++
		}
	}
	return v
}

func cosine(a, b map[string]int) float64 {
	var dot, na, nb float64
	for k, av := range a {
		na += float64(av * av)
		if bv, ok := b[k]; ok {
			dot += float64(av * bv)
		}
	}
	for _, bv := range b {
		nb += float64(bv * bv)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
