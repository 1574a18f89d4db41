package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// latinMark matches combining marks outside the Thai block. Thai vowels and tone
// marks are category Mn too but carry meaning.
var latinMark = runes.Predicate(func(r rune) bool {
	return unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Thai, r)
})

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(latinMark), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// NameMatches reports whether query occurs in any of the given names after normalization.
func NameMatches(query string, names ...string) bool {
	q := NormalizePersonName(query)
	if q == "" {
		return true
	}
	for _, n := range names {
		if strings.Contains(NormalizePersonName(n), q) {
			return true
		}
	}
	return false
}
