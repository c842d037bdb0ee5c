package fts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Provider {
	t.Helper()
	p, err := Open(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestMatchExprQuotesTerms(t *testing.T) {
	assert.Equal(t, `"rome" OR "near" OR "empire"`, matchExpr(`Rome NEAR "empire`))
	assert.Equal(t, "", matchExpr("  *  "))
}

func TestIndexAndSearch(t *testing.T) {
	ctx := context.Background()
	p := openTest(t)

	require.NoError(t, p.Index(ctx, 1, "Ancient_Rome", "Rome was founded on the Tiber. The empire spanned three continents."))
	require.NoError(t, p.Index(ctx, 2, "Modern_Art", "Art of the twentieth century. Some works depict Rome."))
	require.NoError(t, p.Index(ctx, 3, "Botany", "Plants and flowers."))

	hits, err := p.Search(ctx, "rome", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, uint(1), hits[0].DocID)
	assert.Equal(t, "Ancient_Rome", hits[0].Title)
	assert.Contains(t, hits[0].Snippet, "**Rome**")
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	hits, err = p.Search(ctx, "empires", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint(1), hits[0].DocID)
}

func TestReindexAndDelete(t *testing.T) {
	ctx := context.Background()
	p := openTest(t)

	require.NoError(t, p.Index(ctx, 1, "Topic", "original wording"))
	require.NoError(t, p.Index(ctx, 1, "Topic", "revised wording"))

	hits, err := p.Search(ctx, "original", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, p.Delete(ctx, 1))
	hits, err = p.Search(ctx, "revised", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = p.Search(ctx, "", 10)
	require.NoError(t, err)
	assert.NotNil(t, hits)
}
