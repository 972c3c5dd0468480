package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ct/internal/catalog"
)

func newTestStore(t *testing.T) *catalog.SQLiteStore {
	t.Helper()
	store, err := catalog.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeGoFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestUnitStagesUnitFilesSymbols(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dir := t.TempDir()
	path := writeGoFile(t, dir, "widget.go", sampleSource)

	member := Member{Name: "myunit", Dir: dir, GoFiles: []string{path}}

	n, err := ingestUnit(ctx, store, member, &Config{ReferenceCeiling: 16})
	require.NoError(t, err)
	assert.Positive(t, n)

	unit, err := store.GetUnitByName(ctx, "myunit")
	require.NoError(t, err)
	assert.Equal(t, "myunit", unit.Name)

	syms, err := store.QueryByPath(ctx, "myunit.Widget")
	require.NoError(t, err)
	require.Len(t, syms, 1)

	files, err := store.ListFilesByUnit(ctx, unit.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, path, files[0].Path)

	impls, err := store.ListImplsByForPath(ctx, "myunit.Widget")
	require.NoError(t, err)
	require.Len(t, impls, 1)
}

func TestIngestUnitSkipsUnparseableFileButKeepsOthers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dir := t.TempDir()
	goodPath := writeGoFile(t, dir, "good.go", sampleSource)
	badPath := writeGoFile(t, dir, "bad.go", "package sample\nfunc broken( {\n")

	member := Member{Name: "myunit", Dir: dir, GoFiles: []string{goodPath, badPath}}

	n, err := ingestUnit(ctx, store, member, &Config{ReferenceCeiling: 16})
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestIngestWorkspaceWithNoGoFilesReturnsEmptyReport(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.test/badworkspace\n\ngo 1.25\n"), 0o644))

	// No "go" toolchain invocation happens until DiscoverMembers runs;
	// this test points at a workspace with no Go files at all, which
	// DiscoverMembers
	// (and therefore IngestWorkspace) will report as zero members,
	// a non-error, empty-report outcome rather than a failure.
	report, err := IngestWorkspace(ctx, store, dir, &Config{Workers: 1})
	if err != nil {
		t.Skipf("go toolchain unavailable in this environment: %v", err)
	}
	assert.Empty(t, report.Units)
}
