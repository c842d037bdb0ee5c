// Package search defines the text-search provider the search projection
// writes to and queries.
package search

import (
	"context"
	"strings"
	"unicode"
)

// Hit is one ranked match. Higher scores rank first.
type Hit struct {
	DocID   uint
	Title   string
	Score   float64
	Snippet string
}

// Provider is an external full-text index. Implementations must treat Index
// as an upsert and Delete of a missing document as a no-op.
type Provider interface {
	Name() string
	Index(ctx context.Context, docID uint, title, body string) error
	Delete(ctx context.Context, docID uint) error
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

// HighlightOpen and HighlightClose wrap matched terms in snippets.
const (
	HighlightOpen  = "**"
	HighlightClose = "**"
)

// Terms splits a query or document into lowercase alphanumeric terms.
func Terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
