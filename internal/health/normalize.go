package health

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize trims and lowercases a client code or campaign label for
// exact-match comparison.
func Normalize(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}
