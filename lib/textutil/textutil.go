package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Clean trims the edges and collapses inner whitespace runs to a
// single space.
func Clean(s string) string {
	s = strings.Trim(s, " \n\t")
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// CanonicalKey lowercases and strips all whitespace, producing a
// case/spacing-insensitive key for matching and hashing.
func CanonicalKey(s string) string {
	s = strings.ToLower(s)
	s = strings.Trim(s, " \n\t")
	return whitespaceRegex.ReplaceAllString(s, "")
}
