package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ct/pkg/types"
)

func writeIgnoreFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ".ctignore")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileYieldsEmptyMatcher(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), ".ctignore"))
	require.NoError(t, err)
	assert.False(t, m.MatchesUnit(&types.Unit{Name: "anything"}))
}

func TestUnitRuleWithoutVersionBound(t *testing.T) {
	path := writeIgnoreFile(t, "vendored-thirdparty\n")
	m, err := Load(path)
	require.NoError(t, err)

	assert.True(t, m.MatchesUnit(&types.Unit{Name: "vendored-thirdparty", Version: "v2.0.0"}))
	assert.False(t, m.MatchesUnit(&types.Unit{Name: "other"}))
}

func TestUnitRuleWithVersionBound(t *testing.T) {
	path := writeIgnoreFile(t, "legacy < 1.4.0\n")
	m, err := Load(path)
	require.NoError(t, err)

	assert.True(t, m.MatchesUnit(&types.Unit{Name: "legacy", Version: "v1.2.0"}))
	assert.True(t, m.MatchesUnit(&types.Unit{Name: "legacy", Version: "1.4.0"}))
	assert.False(t, m.MatchesUnit(&types.Unit{Name: "legacy", Version: "2.0.0"}))
}

func TestPathRuleMatchesDottedPrefixOnly(t *testing.T) {
	path := writeIgnoreFile(t, "myunit.internal.generated\n")
	m, err := Load(path)
	require.NoError(t, err)

	assert.True(t, m.MatchesPath("myunit.internal.generated.Foo"))
	assert.True(t, m.MatchesPath("myunit.internal.generated"))
	assert.False(t, m.MatchesPath("myunit.internal.generatedextra"))
}

func TestGlobRuleDelegatesToGitignoreSyntax(t *testing.T) {
	path := writeIgnoreFile(t, "**/*_gen.go\n")
	m, err := Load(path)
	require.NoError(t, err)

	assert.True(t, m.MatchesGlob("internal/proto/thing_gen.go"))
	assert.False(t, m.MatchesGlob("internal/proto/thing.go"))
}

func TestGlobRuleDetectedByPathSeparator(t *testing.T) {
	path := writeIgnoreFile(t, "vendor/**\n")
	m, err := Load(path)
	require.NoError(t, err)

	assert.True(t, m.MatchesGlob("vendor/pkg/file.go"))
	assert.False(t, m.MatchesUnit(&types.Unit{Name: "vendor"}))
}

func TestCommentsAndBlankLinesAreSkipped(t *testing.T) {
	path := writeIgnoreFile(t, "# comment\n\nskipme\n")
	m, err := Load(path)
	require.NoError(t, err)
	assert.True(t, m.MatchesUnit(&types.Unit{Name: "skipme"}))
}

func TestMatchesSymbolCombinesAllRuleKinds(t *testing.T) {
	path := writeIgnoreFile(t, "myunit.generated\nvendor/**\n")
	m, err := Load(path)
	require.NoError(t, err)

	unit := &types.Unit{Name: "myunit"}
	sym := &types.Symbol{CanonicalPath: "myunit.generated.Thing"}
	assert.True(t, m.MatchesSymbol(unit, sym, "myunit/generated.go"))

	sym2 := &types.Symbol{CanonicalPath: "myunit.other.Thing"}
	assert.True(t, m.MatchesSymbol(unit, sym2, "vendor/pkg/file.go"))
	assert.False(t, m.MatchesSymbol(unit, sym2, "myunit/other.go"))
}

func TestDottedPathIsNotRoutedToGlob(t *testing.T) {
	// regression for spec scenario: "api.internal" must suppress deep
	// expansion under that canonical path, not fall through to a glob
	// match against the filesystem path "api/internal/...".
	path := writeIgnoreFile(t, "api.internal\n")
	m, err := Load(path)
	require.NoError(t, err)

	sym := &types.Symbol{CanonicalPath: "api.internal.Helper"}
	assert.True(t, m.MatchesPath(sym.CanonicalPath))
	assert.True(t, m.MatchesSymbol(&types.Unit{Name: "api"}, sym, "api/internal/helper.go"))
}
