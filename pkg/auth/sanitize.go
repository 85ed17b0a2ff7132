package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeName trims a display name, removes control characters and collapses
// runs of whitespace into a single space. Names are forwarded to the identity
// provider verbatim, so no HTML escaping is applied here.
func SanitizeName(name string) string {
	// Remove control characters
	name = removeControlChars(name)

	// Collapse and trim whitespace
	return strings.Join(strings.Fields(name), " ")
}

// ValidateStringLength validates that a string is within the specified length
// constraints, counted in characters rather than bytes.
func ValidateStringLength(field, value string, min, max int) error {
	length := utf8.RuneCountInString(value)

	if min > 0 && length < min {
		return fmt.Errorf("%s must be at least %d characters long", field, min)
	}

	if max > 0 && length > max {
		return fmt.Errorf("%s must be at most %d characters long", field, max)
	}

	return nil
}

// removeControlChars removes control characters. Tabs and newlines become spaces.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
