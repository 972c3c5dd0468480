package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesOriginalDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 16000, cfg.MaxContextSize)
	assert.True(t, cfg.Autostart)
	assert.Equal(t, 300, cfg.WatcherDebounceMS)
	assert.Equal(t, TransportAuto, cfg.Transport)
}

func TestEffectiveTransportResolvesAuto(t *testing.T) {
	cfg := Default()
	got := cfg.EffectiveTransport()
	assert.NotEqual(t, TransportAuto, got)
}

func TestEffectiveTransportPassesThroughExplicitChoice(t *testing.T) {
	cfg := Default()
	cfg.Transport = TransportTCP
	assert.Equal(t, TransportTCP, cfg.EffectiveTransport())
}

func TestDBPathUsesDBDirWhenSet(t *testing.T) {
	cfg := Default()
	cfg.DBDir = "/custom/dir"
	assert.Equal(t, "/custom/dir/symbols.sqlite", cfg.DBPath("fp1234"))
}

func TestDBPathFallsBackToCacheDir(t *testing.T) {
	cfg := Default()
	got := cfg.DBPath("fp1234")
	assert.Contains(t, got, "fp1234")
	assert.Contains(t, got, "symbols.sqlite")
}

func TestSideDBPathAppendsTmpSuffix(t *testing.T) {
	cfg := Default()
	cfg.DBDir = "/custom/dir"
	assert.Equal(t, "/custom/dir/symbols.sqlite.tmp", cfg.SideDBPath("fp1234"))
}

func TestResolvedSocketPathEmbedsFingerprintPrefix(t *testing.T) {
	cfg := Default()
	got := cfg.ResolvedSocketPath("abcdefgh12345678")
	if got != cfg.SocketPath { // non-windows
		assert.Contains(t, got, "abcdefgh")
		assert.NotContains(t, got, "12345678")
	}
}

func TestWorkspaceAllowedWithEmptyListPermitsEverything(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.WorkspaceAllowed("/anywhere"))
}

func TestWorkspaceAllowedRestrictsToConfiguredRoots(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.WorkspaceAllow = []string{dir}

	assert.True(t, cfg.WorkspaceAllowed(filepath.Join(dir, "sub")))
	assert.False(t, cfg.WorkspaceAllowed("/elsewhere"))
}

func TestLoadFallsBackToDefaultsWhenNoCtTomlPresent(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 16000, cfg.MaxContextSize)
}

func TestLoadReadsCtTomlOverrides(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ct.toml"), []byte("max_context_size = 5000\nautostart = false\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.MaxContextSize)
	assert.False(t, cfg.Autostart)
}

func TestLoadEnvVarOverridesFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ct.toml"), []byte("max_context_size = 5000\n"), 0o644))
	t.Setenv("CT_MAX_CONTEXT_SIZE", "7000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.MaxContextSize)
}
