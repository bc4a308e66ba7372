// Package learn closes the feedback loop: review outcomes adjust pattern
// weights, and recurring denial notes become candidate patterns for a human
// to activate.
package learn

import (
	"strings"
	"unicode"

	"github.com/marloweandco/studio-ops/pkg/match"
)

// NormalizeNote canonicalizes a reviewer note for clustering: folded,
// punctuation stripped, whitespace collapsed. "Fee should exclude VAT!" and
// "fee should exclude vat" normalize identically.
func NormalizeNote(note string) string {
	folded := match.Fold(note)
	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
