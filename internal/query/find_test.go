package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/pkg/types"
)

func seedStore(t *testing.T) *catalog.SQLiteStore {
	t.Helper()
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	unit := &types.Unit{Name: "myunit", Fingerprint: "f0", Root: "/ws/myunit"}
	require.NoError(t, store.UpsertUnit(ctx, unit))

	file := &types.FileRecord{UnitID: unit.ID, Path: "/ws/myunit/widget.go", Digest: "blake2b:aa"}
	require.NoError(t, store.UpsertFile(ctx, file))

	symbols := []*types.Symbol{
		{SymbolID: "s1", UnitID: unit.ID, FileID: file.ID, CanonicalPath: "myunit.Widget", Name: "Widget", Kind: types.KindStruct, Visibility: types.VisibilityPublic, Signature: "type Widget struct", Status: types.StatusImplemented, SpanStart: 3, SpanEnd: 6, DefHash: "d1"},
		{SymbolID: "s2", UnitID: unit.ID, FileID: file.ID, CanonicalPath: "myunit.WidgetFactory", Name: "WidgetFactory", Kind: types.KindFn, Visibility: types.VisibilityPublic, Signature: "func WidgetFactory()", Status: types.StatusImplemented, SpanStart: 10, SpanEnd: 12, DefHash: "d2"},
		{SymbolID: "s3", UnitID: unit.ID, FileID: file.ID, CanonicalPath: "myunit.widgetHelper", Name: "widgetHelper", Kind: types.KindFn, Visibility: types.VisibilityPrivate, Signature: "func widgetHelper()", Status: types.StatusTodo, SpanStart: 14, SpanEnd: 16, DefHash: "d3"},
	}
	for _, s := range symbols {
		require.NoError(t, store.UpsertSymbol(ctx, s))
	}
	return store
}

func TestFindExactGlobalByPath(t *testing.T) {
	store := seedStore(t)
	r, err := NewResolver(store, 0)
	require.NoError(t, err)

	hits, err := r.Find(context.Background(), FindRequest{Query: "myunit.Widget"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "myunit.Widget", hits[0].Symbol.CanonicalPath)
	assert.Equal(t, StageExactGlobal, hits[0].StageRank)
}

func TestFindExactGlobalByNameIsCaseInsensitive(t *testing.T) {
	store := seedStore(t)
	r, err := NewResolver(store, 0)
	require.NoError(t, err)

	hits, err := r.Find(context.Background(), FindRequest{Query: "widget"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Widget", hits[0].Symbol.Name)
}

func TestFindPrefixMatch(t *testing.T) {
	store := seedStore(t)
	r, err := NewResolver(store, 0)
	require.NoError(t, err)

	hits, err := r.Find(context.Background(), FindRequest{Query: "Widg"})
	require.NoError(t, err)
	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.Symbol.Name
	}
	assert.Contains(t, names, "Widget")
	assert.Contains(t, names, "WidgetFactory")
}

func TestFindWithNoStatusFlagsReturnsEveryStatus(t *testing.T) {
	store := seedStore(t)
	r, err := NewResolver(store, 0)
	require.NoError(t, err)

	hits, err := r.Find(context.Background(), FindRequest{Query: "widget"})
	require.NoError(t, err)
	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.Symbol.Name
	}
	assert.Contains(t, names, "Widget")
	assert.Contains(t, names, "WidgetFactory")
	assert.Contains(t, names, "widgetHelper")
}

func TestFindStatusFilterRestrictsToRequestedStatuses(t *testing.T) {
	store := seedStore(t)
	r, err := NewResolver(store, 0)
	require.NoError(t, err)

	hits, err := r.Find(context.Background(), FindRequest{Query: "widget", IncludeTodo: true})
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, types.StatusTodo, h.Symbol.Status)
	}
}

func TestFindVisibilityFilter(t *testing.T) {
	store := seedStore(t)
	r, err := NewResolver(store, 0)
	require.NoError(t, err)

	hits, err := r.Find(context.Background(), FindRequest{Query: "Widg", Visibility: types.VisibilityPublic})
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, types.VisibilityPublic, h.Symbol.Visibility)
	}
}

func TestFindContextLocalLeafMatch(t *testing.T) {
	store := seedStore(t)
	r, err := NewResolver(store, 0)
	require.NoError(t, err)

	hits, err := r.Find(context.Background(), FindRequest{Query: "Widget", ContextPath: "myunit"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, StageContextLocal, hits[0].StageRank)
}

func TestFindFuzzyMatchSurvivesTypo(t *testing.T) {
	store := seedStore(t)
	r, err := NewResolver(store, 0)
	require.NoError(t, err)

	hits, err := r.Find(context.Background(), FindRequest{Query: "Widgot"})
	require.NoError(t, err)
	found := false
	for _, h := range hits {
		if h.Symbol.Name == "Widget" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestFindRespectsMemoryCeiling(t *testing.T) {
	store := seedStore(t)
	r, err := NewResolver(store, 1) // 1MB ceiling, tiny candidate set still fits
	require.NoError(t, err)

	_, err = r.Find(context.Background(), FindRequest{Query: "Widgot"})
	require.NoError(t, err)
}
