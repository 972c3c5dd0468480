package query

import (
	"sort"

	"github.com/dshills/ct/pkg/types"
)

// StageRank identifies which resolution stage (spec §4.5) produced a
// result, and doubles as the primary sort key of the total order.
type StageRank int

const (
	StageContextLocal StageRank = 0
	StageExactGlobal  StageRank = 1
	StagePrefix       StageRank = 2
	StageFuzzy        StageRank = 3
)

// Hit pairs a symbol with the stage that produced it, since the same
// symbol_id must sort identically regardless of which caller asked
// for it.
type Hit struct {
	Symbol    *types.Symbol
	StageRank StageRank
}

// isExternalUnit always reports false: the ingestor in this
// implementation only ever catalogues workspace-member units, so the
// "external unit" tier of the ordering law has no live members yet.
// Kept as a hook so a future external-dependency ingestion path can
// slot in without touching the comparator.
func isExternalUnit(_ int64) bool {
	return false
}

// SortTotalOrder sorts hits per spec §4.5's stable total order:
// stage rank ascending, public before private, workspace-member unit
// before external, shorter canonical_path, smaller span_start,
// lexicographically smaller symbol_id.
func SortTotalOrder(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.StageRank != b.StageRank {
			return a.StageRank < b.StageRank
		}
		if (a.Symbol.Visibility == types.VisibilityPublic) != (b.Symbol.Visibility == types.VisibilityPublic) {
			return a.Symbol.Visibility == types.VisibilityPublic
		}
		aExt, bExt := isExternalUnit(a.Symbol.UnitID), isExternalUnit(b.Symbol.UnitID)
		if aExt != bExt {
			return !aExt
		}
		if len(a.Symbol.CanonicalPath) != len(b.Symbol.CanonicalPath) {
			return len(a.Symbol.CanonicalPath) < len(b.Symbol.CanonicalPath)
		}
		if a.Symbol.SpanStart != b.Symbol.SpanStart {
			return a.Symbol.SpanStart < b.Symbol.SpanStart
		}
		return a.Symbol.SymbolID < b.Symbol.SymbolID
	})
}
