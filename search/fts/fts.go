// Package fts is a search provider backed by an SQLite FTS5 index.
package fts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"encyclopedia-cms/search"

	_ "modernc.org/sqlite"
)

const schema = `CREATE VIRTUAL TABLE IF NOT EXISTS documents USING fts5(
	title,
	body,
	tokenize = 'porter unicode61'
)`

// Column weights for bm25: title matches count three times a body match.
const rankExpr = `bm25(documents, 3.0, 1.0)`

type Provider struct {
	db *sql.DB
}

var _ search.Provider = (*Provider)(nil)

// Open opens or creates the index at path. ":memory:" keeps it in process.
func Open(path string) (*Provider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("search index path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create search index: %w", err)
	}
	return &Provider{db: db}, nil
}

func (p *Provider) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Provider) Name() string { return "fts5" }

func (p *Provider) Index(ctx context.Context, docID uint, title, body string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE rowid = ?`, docID); err != nil {
		return fmt.Errorf("index document %d: %w", docID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (rowid, title, body) VALUES (?, ?, ?)`,
		docID, title, body,
	)
	if err != nil {
		return fmt.Errorf("index document %d: %w", docID, err)
	}
	return tx.Commit()
}

func (p *Provider) Delete(ctx context.Context, docID uint) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE rowid = ?`, docID); err != nil {
		return fmt.Errorf("delete document %d: %w", docID, err)
	}
	return nil
}

func (p *Provider) Search(ctx context.Context, query string, limit int) ([]search.Hit, error) {
	match := matchExpr(query)
	if match == "" || limit <= 0 {
		return []search.Hit{}, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT rowid, title, -`+rankExpr+`, snippet(documents, 1, ?, ?, '...', 24)
		   FROM documents
		  WHERE documents MATCH ?
		  ORDER BY `+rankExpr+`, rowid
		  LIMIT ?`,
		search.HighlightOpen, search.HighlightClose, match, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer rows.Close()

	hits := []search.Hit{}
	for rows.Next() {
		var hit search.Hit
		var docID int64
		if err := rows.Scan(&docID, &hit.Title, &hit.Score, &hit.Snippet); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hit.DocID = uint(docID)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// matchExpr quotes every term so user input never reaches the FTS5 query
// syntax. Any term may match.
func matchExpr(query string) string {
	terms := search.Terms(query)
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + term + `"`
	}
	return strings.Join(quoted, " OR ")
}
