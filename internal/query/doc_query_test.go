package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/pkg/types"
)

func seedDocStore(t *testing.T) (*catalog.SQLiteStore, *types.Unit) {
	t.Helper()
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	unit := &types.Unit{Name: "core", Fingerprint: "f0", Root: "/ws/core"}
	require.NoError(t, store.UpsertUnit(ctx, unit))

	file := &types.FileRecord{UnitID: unit.ID, Path: "/ws/core/util.go", Digest: "blake2b:aa"}
	require.NoError(t, store.UpsertFile(ctx, file))

	sym := &types.Symbol{SymbolID: "s1", UnitID: unit.ID, FileID: file.ID, CanonicalPath: "core.util.State", Name: "State", Kind: types.KindStruct, Visibility: types.VisibilityPublic, Signature: "type State struct", Docs: "State holds things.", Status: types.StatusImplemented, SpanStart: 3, SpanEnd: 8, DefHash: "d1"}
	require.NoError(t, store.UpsertSymbol(ctx, sym))

	return store, unit
}

func TestDocOmitsDocsFieldWhenNotRequested(t *testing.T) {
	store, _ := seedDocStore(t)

	result, err := Doc(context.Background(), store, "core.util.State", false)
	require.NoError(t, err)
	assert.Empty(t, result.Docs)
	assert.Empty(t, result.Symbol.Docs, "the embedded symbol must not leak docs either")
}

func TestDocIncludesDocsFieldWhenRequested(t *testing.T) {
	store, _ := seedDocStore(t)

	result, err := Doc(context.Background(), store, "core.util.State", true)
	require.NoError(t, err)
	assert.Equal(t, "State holds things.", result.Docs)
	assert.Equal(t, "State holds things.", result.Symbol.Docs)
}

func TestResolveByPathAmbiguousAcrossUnitVersions(t *testing.T) {
	ctx := context.Background()
	store, _ := seedDocStore(t)

	other := &types.Unit{Name: "core", Version: "v2", Fingerprint: "f1", Root: "/ws/core-v2"}
	require.NoError(t, store.UpsertUnit(ctx, other))
	file := &types.FileRecord{UnitID: other.ID, Path: "/ws/core-v2/util.go", Digest: "blake2b:bb"}
	require.NoError(t, store.UpsertFile(ctx, file))
	dup := &types.Symbol{SymbolID: "s2", UnitID: other.ID, FileID: file.ID, CanonicalPath: "core.util.State", Name: "State", Kind: types.KindStruct, Visibility: types.VisibilityPublic, Signature: "type State struct", Status: types.StatusImplemented, SpanStart: 3, SpanEnd: 8, DefHash: "d2"}
	require.NoError(t, store.UpsertSymbol(ctx, dup))

	_, err := ResolveByPath(ctx, store, "core.util.State")
	assert.ErrorIs(t, err, ErrAmbiguous)
}
