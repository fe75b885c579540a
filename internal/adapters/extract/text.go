package extract

import (
	"strings"
	"unicode"
)

// NormalizeText lowercases, strips punctuation and collapses whitespace runs
// into a single space, producing the comparison-friendly form used by the
// matcher. The original text is kept on the record for display.
func NormalizeText(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	lastSpace := true
	for _, r := range strings.ToLower(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits normalized text into its words.
func Tokens(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

// ContainsEither reports whether either normalized string contains the
// other. Both sides must be non-empty and the shorter side at least
// minLen runes, so a one-letter fragment never counts as overlap.
func ContainsEither(a, b string, minLen int) bool {
	if a == "" || b == "" {
		return false
	}
	shorter := a
	if len(b) < len(a) {
		shorter = b
	}
	if len(shorter) < minLen {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
