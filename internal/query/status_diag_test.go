package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusAggregatesAndListsItems(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	report, err := Status(ctx, store, StatusFilters{IncludeTodo: true})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Todo)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "widgetHelper", report.Items[0].Name)
}

func TestDocIncludesDocsOnlyWhenRequested(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	withoutDocs, err := Doc(ctx, store, "myunit.Widget", false)
	require.NoError(t, err)
	assert.Empty(t, withoutDocs.Docs)

	withDocs, err := Doc(ctx, store, "myunit.Widget", true)
	require.NoError(t, err)
	assert.Equal(t, withDocs.Symbol.Docs, withDocs.Docs)
}

func TestDiagReportsSchemaVersionAndCounts(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	report, err := Diag(ctx, store, "/tmp/symbols.sqlite", "unix", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", report.SchemaVersion)
	assert.Equal(t, 3, report.TotalSymbols)
	assert.Equal(t, "unix", report.Transport)
}
