package push

import (
	"strings"
	"unicode"
)

// Personalize replaces name placeholders in text. An empty name leaves text untouched;
// any other name, whitespace included, is substituted as given.
// Replacement is a single literal pass: substituted values are never re-scanned.
func Personalize(text, name string) string {
	if name == "" {
		return text
	}

	first := name
	if i := strings.IndexFunc(name, unicode.IsSpace); i >= 0 {
		first = name[:i]
	}

	r := strings.NewReplacer(
		"{name}", name,
		"{Name}", name,
		"{firstname}", first,
		"{firstName}", first,
		"{Firstname}", first,
		"{FirstName}", first,
	)
	return r.Replace(text)
}
