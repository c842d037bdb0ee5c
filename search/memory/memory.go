// Package memory is an in-process search provider backed by an ordered
// posting index.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"encyclopedia-cms/search"

	"github.com/google/btree"
)

const (
	defaultTreeDegree = 32
	titleWeight       = 3.0
	maxSnippetLen     = 200
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "to": {}, "was": {}, "with": {},
}

// posting records how often a term occurs in one document.
type posting struct {
	term  string
	docID uint
	title int
	body  int
}

func (p posting) Less(o posting) bool {
	if p.term != o.term {
		return p.term < o.term
	}
	return p.docID < o.docID
}

type document struct {
	title string
	body  string
	terms []string
}

// Provider keeps postings ordered by (term, doc) so a term lookup is a
// single range scan.
type Provider struct {
	mu       sync.RWMutex
	postings *btree.BTreeG[posting]
	docs     map[uint]document
}

var _ search.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{
		postings: btree.NewG(defaultTreeDegree, posting.Less),
		docs:     make(map[uint]document),
	}
}

func (p *Provider) Name() string { return "memory" }

func (p *Provider) Index(ctx context.Context, docID uint, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	counts := make(map[string]*posting)
	add := func(text string, isTitle bool) {
		for _, term := range analyze(text) {
			entry, ok := counts[term]
			if !ok {
				entry = &posting{term: term, docID: docID}
				counts[term] = entry
			}
			if isTitle {
				entry.title++
			} else {
				entry.body++
			}
		}
	}
	add(strings.ReplaceAll(title, "_", " "), true)
	add(body, false)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.removeLocked(docID)
	terms := make([]string, 0, len(counts))
	for term, entry := range counts {
		p.postings.ReplaceOrInsert(*entry)
		terms = append(terms, term)
	}
	p.docs[docID] = document{title: title, body: body, terms: terms}
	return nil
}

func (p *Provider) Delete(ctx context.Context, docID uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(docID)
	return nil
}

func (p *Provider) removeLocked(docID uint) {
	doc, ok := p.docs[docID]
	if !ok {
		return
	}
	for _, term := range doc.terms {
		p.postings.Delete(posting{term: term, docID: docID})
	}
	delete(p.docs, docID)
}

// Search scores documents with a title-weighted tf-idf over the query
// terms. Ties break on document id.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]search.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := analyze(query)
	if len(terms) == 0 || limit <= 0 {
		return []search.Hit{}, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	total := float64(len(p.docs))
	scores := make(map[uint]float64)
	for _, term := range dedupe(terms) {
		var matches []posting
		p.postings.AscendRange(
			posting{term: term},
			posting{term: term + "\x00"},
			func(item posting) bool {
				matches = append(matches, item)
				return true
			},
		)
		if len(matches) == 0 {
			continue
		}
		idf := math.Log(1 + total/float64(len(matches)))
		for _, m := range matches {
			tf := titleWeight*float64(m.title) + float64(m.body)
			scores[m.docID] += (1 + math.Log(tf)) * idf
		}
	}

	hits := make([]search.Hit, 0, len(scores))
	for docID, score := range scores {
		doc := p.docs[docID]
		hits = append(hits, search.Hit{
			DocID:   docID,
			Title:   doc.title,
			Score:   score,
			Snippet: snippet(doc.body, terms),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len reports the number of indexed documents.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.docs)
}

func analyze(text string) []string {
	raw := search.Terms(text)
	terms := raw[:0]
	for _, term := range raw {
		if _, stop := stopWords[term]; stop {
			continue
		}
		terms = append(terms, stem(term))
	}
	return terms
}

// stem folds simple plurals so "empires" matches "empire".
func stem(term string) string {
	switch {
	case len(term) > 4 && strings.HasSuffix(term, "ies"):
		return term[:len(term)-3] + "y"
	case len(term) > 3 && strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss"):
		return term[:len(term)-1]
	}
	return term
}

func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// snippet returns the first sentence containing a query term with the
// matching words highlighted.
func snippet(body string, terms []string) string {
	want := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		want[t] = struct{}{}
	}

	sentences := splitSentences(body)
	for _, sentence := range sentences {
		if out, ok := highlight(sentence, want); ok {
			return truncate(out)
		}
	}
	if len(sentences) > 0 {
		return truncate(sentences[0])
	}
	return ""
}

func highlight(sentence string, want map[string]struct{}) (string, bool) {
	words := strings.Fields(sentence)
	matched := false
	for i, w := range words {
		core := search.Terms(w)
		if len(core) != 1 {
			continue
		}
		if _, ok := want[stem(core[0])]; !ok {
			continue
		}
		matched = true
		lower := strings.ToLower(w)
		start := strings.Index(lower, core[0])
		end := start + len(core[0])
		words[i] = w[:start] + search.HighlightOpen + w[start:end] + search.HighlightClose + w[end:]
	}
	return strings.Join(words, " "), matched
}

func splitSentences(content string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range content {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func truncate(s string) string {
	if len(s) <= maxSnippetLen {
		return s
	}
	cut := maxSnippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
