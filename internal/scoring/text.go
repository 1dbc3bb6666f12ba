package scoring

import (
	"strings"
	"unicode"
)

// normalizeText lowercases s, replaces every non letter/digit rune with a space
// and pads the result so keywords can be matched at word starts.
func normalizeText(parts ...string) string {
	var b strings.Builder
	b.WriteByte(' ')
	for _, p := range parts {
		lastSpace := true
		for _, r := range strings.ToLower(p) {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
				lastSpace = false
				continue
			}
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
		if !lastSpace {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// keywordType is a family of spellings counted as one distinct hit.
type keywordType struct {
	name  string
	stems []string
}

// matchTypes returns the names of the keyword types present in normalized text.
// A stem matches at the start of a word, so "grant" also matches "grants".
func matchTypes(text string, types []keywordType) []string {
	var hits []string
	for _, kt := range types {
		for _, stem := range kt.stems {
			if strings.Contains(text, " "+stem) {
				hits = append(hits, kt.name)
				break
			}
		}
	}
	return hits
}
