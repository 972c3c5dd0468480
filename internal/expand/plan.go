package expand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/internal/ignore"
	"github.com/dshills/ct/internal/query"
	"github.com/dshills/ct/pkg/types"
)

// ErrAborted is returned when the caller resubmits with decision:
// abort after receiving a decision envelope.
var ErrAborted = errors.New("expand: aborted over max context")

// ErrFullContextNotAllowed is returned when decision: full is
// requested but allow_full_context is disabled in configuration.
var ErrFullContextNotAllowed = errors.New("expand: full context not allowed by configuration")

const (
	childListLimit    = 2000
	parentRefCeiling  = 200
	defaultMaxContext = 64 * 1024
)

// Config bounds a single Plan call (spec §4.7's cap enforcement).
type Config struct {
	MaxContextSize   int
	AllowFullContext bool
}

// Entry is one item of an expansion result: a symbol plus whether it
// was matched by .ctignore, in which case it carries only its name
// and signature and was never descended into.
type Entry struct {
	Symbol  *types.Symbol
	Ignored bool
}

// Result is the outcome of Plan. Exactly one of (Entries populated)
// or (DecisionRequired non-nil) is set.
type Result struct {
	Entries          []Entry
	Truncated        bool
	DecisionRequired *types.DecisionInfo
}

// Planner runs the breadth-first expansion walk against a catalog
// store, honoring an optional .ctignore matcher.
type Planner struct {
	store   catalog.Store
	matcher *ignore.Matcher

	unitCache map[int64]*types.Unit
	fileCache map[int64]*types.FileRecord
}

// NewPlanner builds a Planner. matcher may be nil, in which case no
// symbol is ever treated as ignored.
func NewPlanner(store catalog.Store, matcher *ignore.Matcher) *Planner {
	return &Planner{
		store:     store,
		matcher:   matcher,
		unitCache: make(map[int64]*types.Unit),
		fileCache: make(map[int64]*types.FileRecord),
	}
}

// Plan resolves the breadth-first walk rooted at root, one level per
// character of operators ('>' descend, '<' ascend, applied in the
// order written), then enforces the character cap in cfg. decision
// is the caller's prior choice ("continue"|"abort"|"full"), or empty
// on a fresh request.
func (p *Planner) Plan(ctx context.Context, root *types.Symbol, operators string, implParents bool, cfg Config, decision string) (*Result, error) {
	for _, op := range operators {
		if op != '>' && op != '<' {
			return nil, fmt.Errorf("expand: invalid operator %q", op)
		}
	}

	entries := []Entry{{Symbol: root, Ignored: p.isIgnored(ctx, root)}}
	visited := map[string]bool{root.SymbolID: true}
	frontier := []*types.Symbol{root}

	for _, op := range operators {
		var next []*types.Symbol
		for _, sym := range frontier {
			if p.isIgnored(ctx, sym) && sym.SymbolID != root.SymbolID {
				// ignored entries are leaves: never expanded further.
				continue
			}
			var neighbors []*types.Symbol
			var err error
			if op == '>' {
				neighbors, err = p.childrenOf(ctx, sym)
			} else {
				neighbors, err = p.parentsOf(ctx, sym, implParents)
			}
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n.SymbolID] {
					continue
				}
				visited[n.SymbolID] = true
				next = append(next, n)
			}
		}
		sortLevel(next)
		for _, n := range next {
			entries = append(entries, Entry{Symbol: n, Ignored: p.isIgnored(ctx, n)})
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	return p.applyCap(entries, cfg, decision)
}

// applyCap implements the decision-envelope protocol of spec §4.7.
// The root entry (entries[0]) is always included regardless of cap.
func (p *Planner) applyCap(entries []Entry, cfg Config, decision string) (*Result, error) {
	maxSize := cfg.MaxContextSize
	if maxSize <= 0 {
		maxSize = defaultMaxContext
	}

	total := 0
	cutoff := len(entries)
	for i, e := range entries {
		sz := estimateSize(e)
		if i > 0 && total+sz > maxSize {
			cutoff = i
			break
		}
		total += sz
	}

	if cutoff == len(entries) {
		return &Result{Entries: entries, Truncated: false}, nil
	}

	fullLen := total
	for _, e := range entries[cutoff:] {
		fullLen += estimateSize(e)
	}

	switch decision {
	case "":
		options := []string{"continue", "abort"}
		if cfg.AllowFullContext {
			options = append(options, "full")
		}
		return &Result{DecisionRequired: &types.DecisionInfo{
			Reason:     "max_context_size exceeded",
			ContentLen: fullLen,
			Options:    options,
		}}, nil
	case "continue":
		return &Result{Entries: entries[:cutoff], Truncated: true}, nil
	case "abort":
		return nil, ErrAborted
	case "full":
		if !cfg.AllowFullContext {
			return nil, ErrFullContextNotAllowed
		}
		return &Result{Entries: entries, Truncated: false}, nil
	default:
		return nil, fmt.Errorf("expand: unknown decision %q", decision)
	}
}

// estimateSize is the serialized size of one entry including the
// envelope fields a client would actually receive, used to track the
// running character count against max_context_size.
func estimateSize(e Entry) int {
	type wire struct {
		CanonicalPath string `json:"canonical_path"`
		Name          string `json:"name"`
		Kind          string `json:"kind"`
		Visibility    string `json:"visibility"`
		Status        string `json:"status"`
		Signature     string `json:"signature"`
		Docs          string `json:"docs,omitempty"`
	}
	w := wire{
		CanonicalPath: e.Symbol.CanonicalPath,
		Name:          e.Symbol.Name,
		Kind:          string(e.Symbol.Kind),
		Visibility:    string(e.Symbol.Visibility),
		Status:        string(e.Symbol.Status),
		Signature:     e.Symbol.Signature,
	}
	if !e.Ignored {
		w.Docs = e.Symbol.Docs
	}
	b, err := json.Marshal(w)
	if err != nil {
		return len(e.Symbol.CanonicalPath) + len(e.Symbol.Signature)
	}
	return len(b)
}

// sortLevel orders a single BFS level by the stable total order of
// spec §4.5; the stage rank is irrelevant within a level (every
// entry shares it), so it's left at its zero value and only the
// remaining tie-break chain does any work.
func sortLevel(syms []*types.Symbol) {
	hits := make([]query.Hit, len(syms))
	for i, s := range syms {
		hits[i] = query.Hit{Symbol: s}
	}
	query.SortTotalOrder(hits)
	for i, h := range hits {
		syms[i] = h.Symbol
	}
}

// childrenOf implements the child-set table of spec §4.7. Only
// struct/enum/union/trait/module/impl kinds have children; everything
// else is a leaf.
func (p *Planner) childrenOf(ctx context.Context, sym *types.Symbol) ([]*types.Symbol, error) {
	switch sym.Kind {
	case types.KindStruct, types.KindEnum, types.KindTrait, types.KindModule, types.KindImpl:
	default:
		return nil, nil
	}

	prefix := sym.CanonicalPath + "."
	candidates, err := p.store.QueryByPathPrefix(ctx, prefix, childListLimit)
	if err != nil {
		return nil, fmt.Errorf("expand: children of %s: %w", sym.CanonicalPath, err)
	}

	out := make([]*types.Symbol, 0, len(candidates))
	for _, c := range candidates {
		suffix := strings.TrimPrefix(c.CanonicalPath, prefix)
		if strings.Contains(suffix, ".") {
			continue // a grandchild, not a direct child
		}
		out = append(out, c)
	}
	return out, nil
}

// parentsOf implements the parent-set rule of spec §4.7: the
// declaring module is always a parent, entries from the reference
// table whose body references sym are best-effort parent contexts,
// and (when implParents is set and sym is a method) the enclosing
// impl, its type, and its trait (if any) are included too.
func (p *Planner) parentsOf(ctx context.Context, sym *types.Symbol, implParents bool) ([]*types.Symbol, error) {
	var out []*types.Symbol

	if declPath, ok := parentCanonicalPath(sym.CanonicalPath); ok {
		decl, err := p.store.QueryByPath(ctx, declPath)
		if err != nil {
			return nil, fmt.Errorf("expand: declaring parent of %s: %w", sym.CanonicalPath, err)
		}
		if len(decl) > 0 {
			out = append(out, decl[0])
		}
	}

	refs, err := p.store.ListReferencesTo(ctx, sym.CanonicalPath, parentRefCeiling)
	if err != nil {
		return nil, fmt.Errorf("expand: references to %s: %w", sym.CanonicalPath, err)
	}
	for _, ref := range refs {
		owner, err := p.store.ReadSymbol(ctx, ref.SymbolID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("expand: reference owner %d: %w", ref.SymbolID, err)
		}
		out = append(out, owner)
	}

	if implParents && sym.Kind == types.KindMethod {
		implEntries, err := p.implParentsOf(ctx, sym)
		if err != nil {
			return nil, err
		}
		out = append(out, implEntries...)
	}

	return out, nil
}

// implParentsOf resolves the enclosing impl (a synthetic entry — the
// ingestor does not materialize impl blocks as catalog rows, only as
// ImplRecord groupings) and, transitively, the type it is for. It
// never yields a trait entry: the ingestor leaves ImplRecord.TraitPath
// empty in every build (static interface-satisfaction detection is
// out of scope), so there is never a trait to ascend to here.
func (p *Planner) implParentsOf(ctx context.Context, method *types.Symbol) ([]*types.Symbol, error) {
	recvPath, ok := parentCanonicalPath(method.CanonicalPath)
	if !ok {
		return nil, nil
	}
	impls, err := p.store.ListImplsByForPath(ctx, recvPath)
	if err != nil {
		return nil, fmt.Errorf("expand: impls for %s: %w", recvPath, err)
	}

	var out []*types.Symbol
	for _, im := range impls {
		if im.FileID != method.FileID {
			continue
		}
		if method.SpanStart < im.LineStart || method.SpanEnd > im.LineEnd {
			continue
		}
		out = append(out, syntheticImplSymbol(im, recvPath))
	}
	return out, nil
}

// syntheticImplSymbol builds a placeholder Symbol for an impl block
// that has no catalog row of its own. Its SymbolID is derived solely
// from the ImplRecord it represents, so repeated calls remain stable
// and BFS dedup still works across levels.
func syntheticImplSymbol(im *types.ImplRecord, forPath string) *types.Symbol {
	return &types.Symbol{
		ID:            im.ID,
		SymbolID:      fmt.Sprintf("impl:%s:%d:%d", forPath, im.FileID, im.LineStart),
		FileID:        im.FileID,
		CanonicalPath: forPath + ".impl",
		Name:          "impl",
		Kind:          types.KindImpl,
		Visibility:    types.VisibilityPublic,
		Signature:     fmt.Sprintf("impl %s", forPath),
		Status:        types.StatusImplemented,
		SpanStart:     im.LineStart,
		SpanEnd:       im.LineEnd,
	}
}

// parentCanonicalPath strips the last dotted segment off path. It
// reports false when path has no segment left to strip (a top-level
// symbol directly under its unit), since the unit itself has no
// catalog row to ascend to.
func parentCanonicalPath(path string) (string, bool) {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "", false
	}
	return path[:idx], true
}

// isIgnored reports whether sym is matched by the .ctignore matcher.
// Resolving the owning unit and file is best-effort: a lookup failure
// is treated as not-ignored rather than propagated, since .ctignore
// filtering is advisory bundling behavior, not correctness-critical.
func (p *Planner) isIgnored(ctx context.Context, sym *types.Symbol) bool {
	if p.matcher == nil {
		return false
	}

	unit := p.lookupUnit(ctx, sym.UnitID)
	file := p.lookupFile(ctx, sym.FileID)
	var relPath string
	if file != nil {
		relPath = file.Path
	}

	var u types.Unit
	if unit != nil {
		u = *unit
	}
	return p.matcher.MatchesSymbol(&u, sym, relPath)
}

func (p *Planner) lookupUnit(ctx context.Context, unitID int64) *types.Unit {
	if u, ok := p.unitCache[unitID]; ok {
		return u
	}
	units, err := p.store.ListUnits(ctx)
	if err != nil {
		return nil
	}
	for _, u := range units {
		p.unitCache[u.ID] = u
	}
	return p.unitCache[unitID]
}

func (p *Planner) lookupFile(ctx context.Context, fileID int64) *types.FileRecord {
	if f, ok := p.fileCache[fileID]; ok {
		return f
	}
	f, err := p.store.GetFile(ctx, fileID)
	if err != nil {
		return nil
	}
	p.fileCache[fileID] = f
	return f
}
