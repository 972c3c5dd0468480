package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDigestStable(t *testing.T) {
	a, err := FileDigest([]byte("package foo\n"))
	require.NoError(t, err)
	b, err := FileDigest([]byte("package foo\n"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "blake2b:")
}

func TestFileDigestChangesWithContent(t *testing.T) {
	a, err := FileDigest([]byte("package foo\n"))
	require.NoError(t, err)
	b, err := FileDigest([]byte("package bar\n"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSymbolIDDeterministic(t *testing.T) {
	id1, err := SymbolID("unit.Foo", "struct", "blake2b:abc", 1, 10)
	require.NoError(t, err)
	id2, err := SymbolID("unit.Foo", "struct", "blake2b:abc", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 32) // 16 bytes hex-encoded
}

func TestSymbolIDSensitiveToEachComponent(t *testing.T) {
	base, err := SymbolID("unit.Foo", "struct", "blake2b:abc", 1, 10)
	require.NoError(t, err)

	variants := []struct {
		name string
		id   string
	}{
		{"path", mustSymbolID(t, "unit.Bar", "struct", "blake2b:abc", 1, 10)},
		{"kind", mustSymbolID(t, "unit.Foo", "fn", "blake2b:abc", 1, 10)},
		{"digest", mustSymbolID(t, "unit.Foo", "struct", "blake2b:def", 1, 10)},
		{"start", mustSymbolID(t, "unit.Foo", "struct", "blake2b:abc", 2, 10)},
		{"end", mustSymbolID(t, "unit.Foo", "struct", "blake2b:abc", 1, 11)},
	}
	for _, v := range variants {
		assert.NotEqual(t, base, v.id, "changing %s should change symbol_id", v.name)
	}
}

func mustSymbolID(t *testing.T, path, kind, digest string, start, end int) string {
	t.Helper()
	id, err := SymbolID(path, kind, digest, start, end)
	require.NoError(t, err)
	return id
}

func TestWorkspaceFingerprintOrderIndependent(t *testing.T) {
	a, err := Workspace(map[string]string{"core": "/ws/core", "api": "/ws/api"})
	require.NoError(t, err)
	b, err := Workspace(map[string]string{"api": "/ws/api", "core": "/ws/core"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
