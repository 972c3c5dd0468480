package expand

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/internal/ignore"
	"github.com/dshills/ct/pkg/types"
)

func seedPlannerStore(t *testing.T) (*catalog.SQLiteStore, *types.Symbol) {
	t.Helper()
	ctx := context.Background()
	store, err := catalog.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	unit := &types.Unit{Name: "myunit", Fingerprint: "f0", Root: "/ws/myunit"}
	require.NoError(t, store.UpsertUnit(ctx, unit))

	file := &types.FileRecord{UnitID: unit.ID, Path: "/ws/myunit/widget.go", Digest: "blake2b:aa"}
	require.NoError(t, store.UpsertFile(ctx, file))

	widget := &types.Symbol{SymbolID: "s1", UnitID: unit.ID, FileID: file.ID, CanonicalPath: "myunit.Widget", Name: "Widget", Kind: types.KindStruct, Visibility: types.VisibilityPublic, Signature: "type Widget struct", Status: types.StatusImplemented, SpanStart: 3, SpanEnd: 10, DefHash: "d1"}
	require.NoError(t, store.UpsertSymbol(ctx, widget))

	field := &types.Symbol{SymbolID: "s2", UnitID: unit.ID, FileID: file.ID, CanonicalPath: "myunit.Widget.Name", Name: "Name", Kind: types.KindField, Visibility: types.VisibilityPublic, Signature: "Name string", Status: types.StatusImplemented, SpanStart: 4, SpanEnd: 4, DefHash: "d2"}
	require.NoError(t, store.UpsertSymbol(ctx, field))

	method := &types.Symbol{SymbolID: "s3", UnitID: unit.ID, FileID: file.ID, CanonicalPath: "myunit.Widget.Resize", Name: "Resize", Kind: types.KindMethod, Visibility: types.VisibilityPublic, Signature: "func (w *Widget) Resize()", Status: types.StatusImplemented, SpanStart: 12, SpanEnd: 14, DefHash: "d3"}
	require.NoError(t, store.UpsertSymbol(ctx, method))

	require.NoError(t, store.UpsertImpl(ctx, &types.ImplRecord{ForPath: "myunit.Widget", FileID: file.ID, LineStart: 11, LineEnd: 16}))

	caller := &types.Symbol{SymbolID: "s4", UnitID: unit.ID, FileID: file.ID, CanonicalPath: "myunit.NewWidget", Name: "NewWidget", Kind: types.KindFn, Visibility: types.VisibilityPublic, Signature: "func NewWidget() *Widget", Status: types.StatusImplemented, SpanStart: 18, SpanEnd: 20, DefHash: "d4"}
	require.NoError(t, store.UpsertSymbol(ctx, caller))
	require.NoError(t, store.UpsertReference(ctx, &types.Reference{SymbolID: caller.ID, TargetPath: "myunit.Widget", FileID: file.ID, SpanStart: 19, SpanEnd: 19}))

	root, err := store.QueryByPath(ctx, "myunit.Widget")
	require.NoError(t, err)
	require.Len(t, root, 1)
	return store, root[0]
}

func TestPlanDescendYieldsFieldsAndMethods(t *testing.T) {
	store, root := seedPlannerStore(t)
	p := NewPlanner(store, nil)

	result, err := p.Plan(context.Background(), root, ">", false, Config{MaxContextSize: 10_000}, "")
	require.NoError(t, err)
	require.False(t, result.Truncated)

	names := make([]string, len(result.Entries))
	for i, e := range result.Entries {
		names[i] = e.Symbol.Name
	}
	assert.Contains(t, names, "Widget")
	assert.Contains(t, names, "Name")
	assert.Contains(t, names, "Resize")
}

func TestPlanAscendFromMethodFindsDeclaringStruct(t *testing.T) {
	store, _ := seedPlannerStore(t)
	p := NewPlanner(store, nil)

	method, err := store.QueryByPath(context.Background(), "myunit.Widget.Resize")
	require.NoError(t, err)
	require.Len(t, method, 1)

	result, err := p.Plan(context.Background(), method[0], "<", false, Config{MaxContextSize: 10_000}, "")
	require.NoError(t, err)

	names := make([]string, len(result.Entries))
	for i, e := range result.Entries {
		names[i] = e.Symbol.Name
	}
	assert.Contains(t, names, "Widget")
}

func TestPlanAscendWithReferenceBestEffortParent(t *testing.T) {
	store, root := seedPlannerStore(t)
	p := NewPlanner(store, nil)

	result, err := p.Plan(context.Background(), root, "<", false, Config{MaxContextSize: 10_000}, "")
	require.NoError(t, err)

	names := make([]string, len(result.Entries))
	for i, e := range result.Entries {
		names[i] = e.Symbol.Name
	}
	assert.Contains(t, names, "NewWidget")
}

func TestPlanImplParentsYieldsEnclosingImpl(t *testing.T) {
	store, _ := seedPlannerStore(t)
	p := NewPlanner(store, nil)

	method, err := store.QueryByPath(context.Background(), "myunit.Widget.Resize")
	require.NoError(t, err)
	require.Len(t, method, 1)

	result, err := p.Plan(context.Background(), method[0], "<", true, Config{MaxContextSize: 10_000}, "")
	require.NoError(t, err)

	foundImpl := false
	for _, e := range result.Entries {
		if e.Symbol.Kind == types.KindImpl {
			foundImpl = true
		}
	}
	assert.True(t, foundImpl)
}

func TestPlanStackedOperatorsMixDirections(t *testing.T) {
	store, root := seedPlannerStore(t)
	p := NewPlanner(store, nil)

	// descend to fields/methods, then ascend back: the struct itself
	// is already visited and must not be duplicated.
	result, err := p.Plan(context.Background(), root, "><", false, Config{MaxContextSize: 10_000}, "")
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, e := range result.Entries {
		seen[e.Symbol.SymbolID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "symbol %s duplicated in result", id)
	}
}

func TestPlanRootAlwaysIncludedEvenWhenItAloneExceedsCap(t *testing.T) {
	store, root := seedPlannerStore(t)
	p := NewPlanner(store, nil)

	result, err := p.Plan(context.Background(), root, "", false, Config{MaxContextSize: 1}, "")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Entries)
	assert.Equal(t, root.SymbolID, result.Entries[0].Symbol.SymbolID)
}

func TestPlanOverCapReturnsDecisionEnvelopeThenHonorsContinue(t *testing.T) {
	store, root := seedPlannerStore(t)
	p := NewPlanner(store, nil)

	tinyCfg := Config{MaxContextSize: 120}
	first, err := p.Plan(context.Background(), root, ">", false, tinyCfg, "")
	require.NoError(t, err)
	require.NotNil(t, first.DecisionRequired)
	assert.Contains(t, first.DecisionRequired.Options, "continue")
	assert.Contains(t, first.DecisionRequired.Options, "abort")
	assert.NotContains(t, first.DecisionRequired.Options, "full")

	second, err := p.Plan(context.Background(), root, ">", false, tinyCfg, "continue")
	require.NoError(t, err)
	assert.True(t, second.Truncated)
	assert.NotEmpty(t, second.Entries)
}

func TestPlanOverCapAbortReturnsError(t *testing.T) {
	store, root := seedPlannerStore(t)
	p := NewPlanner(store, nil)

	_, err := p.Plan(context.Background(), root, ">", false, Config{MaxContextSize: 120}, "abort")
	assert.ErrorIs(t, err, ErrAborted)
}

func TestPlanFullDeniedWhenConfigDisallows(t *testing.T) {
	store, root := seedPlannerStore(t)
	p := NewPlanner(store, nil)

	_, err := p.Plan(context.Background(), root, ">", false, Config{MaxContextSize: 120, AllowFullContext: false}, "full")
	assert.ErrorIs(t, err, ErrFullContextNotAllowed)
}

func TestPlanIgnoredSymbolIsMarkedAndNotExpandedFurther(t *testing.T) {
	store, root := seedPlannerStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	ignorePath := dir + "/.ctignore"
	require.NoError(t, os.WriteFile(ignorePath, []byte("myunit.Widget.Resize\n"), 0o644))
	matcher, err := ignore.Load(ignorePath)
	require.NoError(t, err)

	p := NewPlanner(store, matcher)
	result, err := p.Plan(ctx, root, ">", false, Config{MaxContextSize: 10_000}, "")
	require.NoError(t, err)

	var resizeIgnored bool
	for _, e := range result.Entries {
		if e.Symbol.Name == "Resize" {
			resizeIgnored = e.Ignored
		}
	}
	assert.True(t, resizeIgnored)
}
