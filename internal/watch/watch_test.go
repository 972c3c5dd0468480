package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRootWatchesDirectoryAndSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	w, err := New(50*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, w.AddRoot(dir, "myunit"))
}

func TestAddRootSkipsExcludedDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vendor", "pkg"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))

	w, err := New(50*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, w.AddRoot(dir, "myunit"))
}

func TestRunCoalescesBurstIntoSingleAffectedSet(t *testing.T) {
	dir := t.TempDir()
	w, err := New(50*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.AddRoot(dir, "myunit"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan []string, 8)
	go func() {
		_ = w.Run(ctx, func(units []string) {
			results <- units
		})
	}()

	for i := 0; i < 5; i++ {
		f := filepath.Join(dir, "f.go")
		require.NoError(t, os.WriteFile(f, []byte("package myunit\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case units := <-results:
		assert.Equal(t, []string{"myunit"}, units)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced affected set")
	}
}

func TestUnitForPathLongestPrefixWins(t *testing.T) {
	w, err := New(0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	w.roots = map[string]string{
		"/ws":        "outer",
		"/ws/nested": "inner",
	}

	unit, ok := w.unitForPath("/ws/nested/file.go")
	require.True(t, ok)
	assert.Equal(t, "inner", unit)

	unit, ok = w.unitForPath("/ws/other/file.go")
	require.True(t, ok)
	assert.Equal(t, "outer", unit)

	_, ok = w.unitForPath("/elsewhere/file.go")
	assert.False(t, ok)
}
