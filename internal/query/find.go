package query

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/pkg/types"
)

const (
	defaultCandidateCeiling = 2000
	fuzzyCacheSize          = 512
	fuzzyMinRatio           = 0.4
	approxBytesPerCandidate = 128 // rough per-row footprint of a cached name-index entry
)

type scored struct {
	sym   *types.Symbol
	ratio float64
}

// FindRequest is the input to Find (spec §4.5): a query string plus
// optional filters and shell context.
type FindRequest struct {
	Query                string
	ContextPath          string // current-path context from the interactive shell, if any
	Kind                 types.SymbolKind
	Visibility           types.Visibility
	IncludeUnimplemented bool
	IncludeTodo          bool
	CandidateCeiling     int
	Limit                int
}

// Resolver runs the find/doc/status resolution stages against a
// catalog.Store, holding the bounded fuzzy-candidate cache across
// calls the way the teacher's searcher holds its LRU query cache.
type Resolver struct {
	store      catalog.Store
	maxMemMB   int
	fuzzyCache *lru.Cache[string, []*types.Symbol]
	cacheMu    sync.RWMutex
}

// NewResolver builds a Resolver. maxMemMB <= 0 disables the memory
// ceiling check (fuzzy matching always runs).
func NewResolver(store catalog.Store, maxMemMB int) (*Resolver, error) {
	cache, err := lru.New[string, []*types.Symbol](fuzzyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("query: build fuzzy cache: %w", err)
	}
	return &Resolver{store: store, maxMemMB: maxMemMB, fuzzyCache: cache}, nil
}

// Find resolves req through all four stages of spec §4.5 and returns
// the results in the stable total order, already filtered by
// kind/visibility/status and truncated to req.Limit if set.
func (r *Resolver) Find(ctx context.Context, req FindRequest) ([]Hit, error) {
	seen := make(map[string]bool)
	var hits []Hit

	add := func(syms []*types.Symbol, stage StageRank) {
		for _, s := range syms {
			if seen[s.SymbolID] {
				continue
			}
			seen[s.SymbolID] = true
			hits = append(hits, Hit{Symbol: s, StageRank: stage})
		}
	}

	if req.ContextPath != "" {
		local, err := r.contextLocalMatches(ctx, req)
		if err != nil {
			return nil, err
		}
		add(local, StageContextLocal)
	}

	pathSyms, err := r.store.QueryByPath(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("query: exact path match: %w", err)
	}
	add(pathSyms, StageExactGlobal)

	ceiling := req.CandidateCeiling
	if ceiling <= 0 {
		ceiling = defaultCandidateCeiling
	}
	nameSyms, err := r.store.QueryByName(ctx, strings.ToLower(req.Query), ceiling)
	if err != nil {
		return nil, fmt.Errorf("query: exact name match: %w", err)
	}
	add(nameSyms, StageExactGlobal)

	prefixSyms, err := r.store.QueryByNamePrefix(ctx, strings.ToLower(req.Query), ceiling)
	if err != nil {
		return nil, fmt.Errorf("query: prefix match: %w", err)
	}
	add(prefixSyms, StagePrefix)

	// The fuzzy stage needs a broader pool than an exact-query prefix
	// match would give it, or it could never catch a typo past the
	// first character; it still draws from the prefix index (the
	// "prefix candidate set" of spec §4.5), just keyed by a short
	// leading substring of q instead of q in full.
	fuzzyPool, err := r.store.QueryByNamePrefix(ctx, shortPrefix(req.Query), ceiling)
	if err != nil {
		return nil, fmt.Errorf("query: fuzzy candidate pool: %w", err)
	}
	if r.memoryCeilingAllows(len(fuzzyPool)) {
		fuzzy := r.fuzzyMatches(req.Query, fuzzyPool)
		add(fuzzy, StageFuzzy)
	}

	hits = filterHits(hits, req)
	SortTotalOrder(hits)

	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

// contextLocalMatches implements spec §4.5 stage 1: q resolved
// relative to the current shell path, either as a leaf appended to
// it or as a path already fully qualified within the same unit.
func (r *Resolver) contextLocalMatches(ctx context.Context, req FindRequest) ([]*types.Symbol, error) {
	var out []*types.Symbol

	joined := types.CanonicalPath(req.ContextPath, req.Query)
	syms, err := r.store.QueryByPath(ctx, joined)
	if err != nil {
		return nil, fmt.Errorf("query: context-local leaf match: %w", err)
	}
	out = append(out, syms...)

	unit, _, _ := strings.Cut(req.ContextPath, ".")
	if strings.HasPrefix(req.Query, unit+".") {
		full, err := r.store.QueryByPath(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("query: context-local full path match: %w", err)
		}
		out = append(out, full...)
	}
	return out, nil
}

// memoryCeilingAllows reports whether the fuzzy stage's estimated
// footprint over candidateCount names fits under max_mem_mb.
func (r *Resolver) memoryCeilingAllows(candidateCount int) bool {
	if r.maxMemMB <= 0 {
		return true
	}
	estimated := int64(candidateCount) * int64(approxBytesPerCandidate)
	ceiling := int64(r.maxMemMB) * 1024 * 1024
	return estimated < ceiling
}

// shortPrefix returns the first few runes of q, the seed used to
// pull a wide enough fuzzy candidate pool out of the name-prefix
// index.
func shortPrefix(q string) string {
	lower := strings.ToLower(q)
	const n = 2
	runes := []rune(lower)
	if len(runes) <= n {
		return lower
	}
	return string(runes[:n])
}

func (r *Resolver) fuzzyMatches(query string, candidates []*types.Symbol) []*types.Symbol {
	lowerQuery := strings.ToLower(query)

	r.cacheMu.RLock()
	cached, ok := r.fuzzyCache.Get(lowerQuery)
	r.cacheMu.RUnlock()
	if ok {
		return cached
	}

	var matches []scored
	for _, c := range candidates {
		ratio := fuzzyRatio(lowerQuery, strings.ToLower(c.Name))
		if ratio >= fuzzyMinRatio {
			matches = append(matches, scored{sym: c, ratio: ratio})
		}
	}
	sortScoredDesc(matches)

	out := make([]*types.Symbol, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.sym)
	}

	r.cacheMu.Lock()
	r.fuzzyCache.Add(lowerQuery, out)
	r.cacheMu.Unlock()

	return out
}

func sortScoredDesc(matches []scored) {
	for i := 1; i < len(matches); i++ {
		j := i
		for j > 0 && matches[j-1].ratio < matches[j].ratio {
			matches[j-1], matches[j] = matches[j], matches[j-1]
			j--
		}
	}
}

// filterHits narrows results by kind/visibility, and by status when
// the caller set -u and/or -t: those flags restrict the result set
// to exactly the statuses named (possibly both); with neither flag
// set, every status passes through.
func filterHits(hits []Hit, req FindRequest) []Hit {
	statusFilterActive := req.IncludeUnimplemented || req.IncludeTodo

	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if req.Kind != "" && h.Symbol.Kind != req.Kind {
			continue
		}
		if req.Visibility != "" && h.Symbol.Visibility != req.Visibility {
			continue
		}
		if statusFilterActive {
			switch h.Symbol.Status {
			case types.StatusUnimplemented:
				if !req.IncludeUnimplemented {
					continue
				}
			case types.StatusTodo:
				if !req.IncludeTodo {
					continue
				}
			default:
				continue
			}
		}
		out = append(out, h)
	}
	return out
}
