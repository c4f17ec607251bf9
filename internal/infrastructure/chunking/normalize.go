package chunking

import (
	"strings"
	"unicode"
)

// Normalize collapses every whitespace run to a single space and trims both ends.
// ASCII file, group, record and unit separators count as whitespace.
func Normalize(text string) string {
	return strings.Join(strings.FieldsFunc(text, isSpace), " ")
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= '\x1c' && r <= '\x1f')
}
