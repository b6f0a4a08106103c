package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) Engine {
	t.Helper()
	cfg := Config{DefaultSearchFields: []string{"title", "description", "address"}, QueryTimeout: time.Second}
	e, err := New(cfg, BuildIndexMapping(""))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	docs := []Doc{
		{ID: "a1", Type: DocTypeAlert, Fields: map[string]any{"title": "MEDICAL Lin", "description": "chest pain near the river", "category": "medical", "status": "active", "priority": 1, "triggered_at": base}},
		{ID: "a2", Type: DocTypeAlert, Fields: map[string]any{"title": "FIRE Chen", "description": "smoke in kitchen", "address": "River Road 9", "category": "fire", "status": "resolved", "priority": 2, "triggered_at": base.Add(time.Hour)}},
		{ID: "a3", Type: DocTypeAlert, Fields: map[string]any{"title": "MEDICAL Wu", "description": "fall on stairs", "category": "medical", "status": "active", "priority": 3, "triggered_at": base.Add(2 * time.Hour)}},
	}
	require.NoError(t, e.IndexBatch(context.Background(), docs))
	return e
}

func ids(res SearchResult) []string {
	out := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, h.ID)
	}
	return out
}

func TestKeywordAcrossFields(t *testing.T) {
	e := newEngine(t)
	res, err := e.Search(context.Background(), SearchRequest{Keyword: "river"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids(res))
}

func TestTermFilterAndFuzzy(t *testing.T) {
	e := newEngine(t)
	res, err := e.Search(context.Background(), SearchRequest{
		Keyword:   "medcal",
		Fuzzy:     1,
		MustTerms: map[string][]string{"status": {"active"}},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a3"}, ids(res))

	res, err = e.Search(context.Background(), SearchRequest{MustTerms: map[string][]string{"category": {"fire", "crime"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids(res))
}

func TestPrefixAndFacets(t *testing.T) {
	e := newEngine(t)
	res, err := e.Search(context.Background(), SearchRequest{
		Keyword: "smok",
		Prefix:  true,
		Facets:  []FacetRequest{{Name: "cat", Field: "category"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids(res))
	assert.Equal(t, 1, res.Facets["cat"].Total)

	res, err = e.Search(context.Background(), SearchRequest{
		Facets: []FacetRequest{{Name: "cat", Field: "category"}},
		From:   1,
		Size:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Total)
	assert.Len(t, res.Hits, 1)
	assert.Equal(t, 3, res.Facets["cat"].Total)
	require.NotEmpty(t, res.Facets["cat"].Terms)
	assert.Equal(t, "medical", res.Facets["cat"].Terms[0].Term)
}

func TestSuggestDeleteAndClose(t *testing.T) {
	e := newEngine(t)
	got, err := e.Suggest(context.Background(), "category", "med", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"medical"}, got)

	require.NoError(t, e.Delete(context.Background(), "a1"))
	res, err := e.Search(context.Background(), SearchRequest{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Total)

	require.NoError(t, e.Close())
	_, err = e.Search(context.Background(), SearchRequest{})
	assert.ErrorIs(t, err, ErrClosed)
}
