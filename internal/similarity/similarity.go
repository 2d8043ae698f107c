package similarity

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Normalize lowercases text and keeps only ASCII letters and digits.
// Umlauts, punctuation and whitespace are dropped, not transliterated.
func Normalize(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Digits keeps only the ASCII digits of s. Used for phone numbers.
func Digits(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Ratio returns 1 - levenshtein(a, b) / max(len(a), len(b)) over the
// normalized inputs. Identical normalized strings, including two empty
// ones, score exactly 1.
func Ratio(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}

	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	if maxLen == 0 {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(na, nb)
	return 1 - float64(distance)/float64(maxLen)
}
