package models

import (
	"strings"
	"unicode"
)

// TitleSeparator joins the words of a normalized title.
const TitleSeparator = "_"

// NormalizeTitle trims the title and collapses every run of whitespace or
// separators into a single TitleSeparator. Case is preserved.
func NormalizeTitle(title string) string {
	words := strings.FieldsFunc(title, func(r rune) bool {
		return unicode.IsSpace(r) || r == '_'
	})
	return strings.Join(words, TitleSeparator)
}

// DisplayTitle renders a normalized title for humans and for the search
// provider, which tokenizes on spaces.
func DisplayTitle(normalized string) string {
	return strings.ReplaceAll(normalized, TitleSeparator, " ")
}
