package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ct/pkg/types"
)

func TestPrepareSideAndCommitSideSwapsGeneration(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	livePath := filepath.Join(dir, "symbols.sqlite")

	live, err := Open(ctx, livePath)
	require.NoError(t, err)
	require.NoError(t, live.UpsertUnit(ctx, &types.Unit{Name: "old", Fingerprint: "f0", Root: "/ws"}))
	require.NoError(t, live.Close())

	side, err := PrepareSide(ctx, livePath)
	require.NoError(t, err)
	require.NoError(t, side.UpsertUnit(ctx, &types.Unit{Name: "new", Fingerprint: "f1", Root: "/ws"}))

	require.NoError(t, CommitSide(side, livePath))

	reopened, err := Open(ctx, livePath)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	units, err := reopened.ListUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "new", units[0].Name)
}
