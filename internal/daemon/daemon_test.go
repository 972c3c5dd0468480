package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ct/internal/config"
	"github.com/dshills/ct/internal/query"
	"github.com/dshills/ct/pkg/types"
)

const sampleSource = `package sample

// Widget is a thing.
type Widget struct {
	Name string
}

// Resize changes the widget's size.
func (w *Widget) Resize(n int) {}

func NewWidget() *Widget { return &Widget{} }
`

// newTestWorkspace writes a minimal single-package Go module to a
// temp dir and returns its root; DiscoverMembers shells out to the
// real "go" toolchain against it, so callers should t.Skip if that
// invocation fails in a toolchain-less environment.
func newTestWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.test/widgets\n\ngo 1.25\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.go"), []byte(sampleSource), 0o644))
	return dir
}

func openTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	ctx := context.Background()
	dir := newTestWorkspace(t)
	cacheDir := t.TempDir()

	cfg := config.Default()
	cfg.DBDir = cacheDir
	cfg.Transport = config.TransportUnix
	cfg.SocketPath = filepath.Join(cacheDir, "ct.sock")

	d, err := Open(ctx, cfg, dir)
	if err != nil {
		t.Skipf("go toolchain unavailable in this environment: %v", err)
	}
	t.Cleanup(func() {
		if d.watcher != nil {
			_ = d.watcher.Close()
		}
	})
	return d
}

func TestOpenIngestsWorkspaceAndFindResolves(t *testing.T) {
	ctx := context.Background()
	d := openTestDaemon(t)

	resp := d.dispatch(ctx, types.Request{
		RequestID: "r1",
		Cmd:       "find",
		Params:    map[string]any{"query": "Widget"},
	})
	require.True(t, resp.Ok, resp.Err)
	syms, ok := resp.Data.([]*types.Symbol)
	require.True(t, ok, "expected []*types.Symbol, got %T", resp.Data)
	require.NotEmpty(t, syms)
	assert.Equal(t, "Widget", syms[0].Name)
}

func TestDispatchUnknownCommandReturnsInvalidArg(t *testing.T) {
	ctx := context.Background()
	d := openTestDaemon(t)

	resp := d.dispatch(ctx, types.Request{RequestID: "r2", Cmd: "frobnicate"})
	require.False(t, resp.Ok)
	assert.Equal(t, types.ErrInvalidArg, resp.ErrCode)
}

func TestDispatchNotFoundPathReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	d := openTestDaemon(t)

	resp := d.dispatch(ctx, types.Request{
		RequestID: "r3",
		Cmd:       "doc",
		Params:    map[string]any{"path": "nosuch.Thing"},
	})
	require.False(t, resp.Ok)
	assert.Equal(t, types.ErrNotFound, resp.ErrCode)
}

func TestCmdReindexCoalescesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	d := openTestDaemon(t)

	type result struct {
		resp types.Response
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			resp := d.dispatch(ctx, types.Request{RequestID: "reindex", Cmd: "reindex"})
			results <- result{resp}
		}()
	}
	for i := 0; i < 2; i++ {
		r := <-results
		assert.True(t, r.resp.Ok, r.resp.Err)
	}

	// the generation must still resolve symbols after the swap
	resp := d.dispatch(ctx, types.Request{RequestID: "r4", Cmd: "find", Params: map[string]any{"query": "Widget"}})
	require.True(t, resp.Ok, resp.Err)
}

func TestDispatchDocOmitsDocsFieldWhenNotRequested(t *testing.T) {
	ctx := context.Background()
	d := openTestDaemon(t)

	resp := d.dispatch(ctx, types.Request{
		RequestID: "r5",
		Cmd:       "doc",
		Params:    map[string]any{"path": "example.test/widgets.Widget"},
	})
	require.True(t, resp.Ok, resp.Err)
	result, ok := resp.Data.(*query.DocResult)
	require.True(t, ok, "expected *query.DocResult, got %T", resp.Data)
	assert.Empty(t, result.Docs)
	assert.Empty(t, result.Symbol.Docs, "the embedded symbol must not leak docs either")
}

func TestDispatchDocIncludesDocsFieldWhenRequested(t *testing.T) {
	ctx := context.Background()
	d := openTestDaemon(t)

	resp := d.dispatch(ctx, types.Request{
		RequestID: "r6",
		Cmd:       "doc",
		Params:    map[string]any{"path": "example.test/widgets.Widget", "include_docs": true},
	})
	require.True(t, resp.Ok, resp.Err)
	result, ok := resp.Data.(*query.DocResult)
	require.True(t, ok, "expected *query.DocResult, got %T", resp.Data)
	assert.Contains(t, result.Docs, "Widget is a thing")
}

func TestDispatchRefusesNonReindexWhenToolFingerprintMismatches(t *testing.T) {
	ctx := context.Background()
	d := openTestDaemon(t)

	current := d.gen.load()
	mismatched := newGeneration(current.store, current.resolver, current.matcher, true)
	d.gen.ptr.Store(mismatched)
	current.release()

	resp := d.dispatch(ctx, types.Request{RequestID: "r7", Cmd: "find", Params: map[string]any{"query": "Widget"}})
	require.False(t, resp.Ok)
	assert.Equal(t, types.ErrIndexMismatch, resp.ErrCode)

	resp = d.dispatch(ctx, types.Request{RequestID: "r8", Cmd: "reindex"})
	assert.True(t, resp.Ok, resp.Err)
}

func TestCheckTokenRejectsMismatchAndAllowsEmptyExpected(t *testing.T) {
	assert.True(t, checkToken("", "anything"))
	assert.True(t, checkToken("secret", "secret"))
	assert.False(t, checkToken("secret", "wrong"))
	assert.False(t, checkToken("secret", ""))
}
