package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/ct/pkg/types"
)

func TestSortTotalOrderStageRankDominates(t *testing.T) {
	hits := []Hit{
		{StageRank: StageFuzzy, Symbol: &types.Symbol{SymbolID: "z", CanonicalPath: "a"}},
		{StageRank: StageExactGlobal, Symbol: &types.Symbol{SymbolID: "a", CanonicalPath: "zzzzzz"}},
	}
	SortTotalOrder(hits)
	assert.Equal(t, StageExactGlobal, hits[0].StageRank)
}

func TestSortTotalOrderPublicBeforePrivate(t *testing.T) {
	hits := []Hit{
		{StageRank: StageExactGlobal, Symbol: &types.Symbol{SymbolID: "a", CanonicalPath: "x", Visibility: types.VisibilityPrivate}},
		{StageRank: StageExactGlobal, Symbol: &types.Symbol{SymbolID: "b", CanonicalPath: "x", Visibility: types.VisibilityPublic}},
	}
	SortTotalOrder(hits)
	assert.Equal(t, types.VisibilityPublic, hits[0].Symbol.Visibility)
}

func TestSortTotalOrderShorterPathBeforeLonger(t *testing.T) {
	hits := []Hit{
		{StageRank: StageExactGlobal, Symbol: &types.Symbol{SymbolID: "a", CanonicalPath: "unit.Longer.Path", Visibility: types.VisibilityPublic}},
		{StageRank: StageExactGlobal, Symbol: &types.Symbol{SymbolID: "b", CanonicalPath: "unit.P", Visibility: types.VisibilityPublic}},
	}
	SortTotalOrder(hits)
	assert.Equal(t, "unit.P", hits[0].Symbol.CanonicalPath)
}

func TestSortTotalOrderSpanStartThenSymbolID(t *testing.T) {
	hits := []Hit{
		{StageRank: StageExactGlobal, Symbol: &types.Symbol{SymbolID: "z9", CanonicalPath: "unit.A", Visibility: types.VisibilityPublic, SpanStart: 20}},
		{StageRank: StageExactGlobal, Symbol: &types.Symbol{SymbolID: "a1", CanonicalPath: "unit.A", Visibility: types.VisibilityPublic, SpanStart: 5}},
	}
	SortTotalOrder(hits)
	assert.Equal(t, 5, hits[0].Symbol.SpanStart)
}
