// Package match is the single home for the 0–100 similarity scoring used
// by message search and contact-name lookup, so the two rank on the same
// scale.
package match

import (
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// Score returns a 0–100 token-set similarity between term and text,
// case-insensitive. Token-set scoring lets a short term score high
// against a longer body that contains it.
func Score(term, text string) int {
	term = strings.ToLower(strings.TrimSpace(term))
	text = strings.ToLower(strings.TrimSpace(text))
	if term == "" || text == "" {
		return 0
	}
	return fuzzy.TokenSetRatio(term, text)
}

// ValidThreshold reports whether t is a usable cutoff on the score scale.
func ValidThreshold(t int) bool {
	return t >= 0 && t <= 100
}
