package daemon

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/dshills/ct/internal/expand"
	"github.com/dshills/ct/internal/query"
	"github.com/dshills/ct/pkg/types"
)

// ExportItem is one bundled entry of an export() response: the
// symbol and, when not matched by .ctignore, its docs and a source
// excerpt bounded by bundle_source_cap.
type ExportItem struct {
	Symbol *types.Symbol `json:"symbol"`
	Docs   string        `json:"docs,omitempty"`
	Source string        `json:"source,omitempty"`
}

type exportParams struct {
	Path           string `json:"path"`
	Expansion      string `json:"expansion"`
	ImplParents    bool   `json:"impl_parents"`
	MaxContextSize int    `json:"max_context_size"`
	Decision       string `json:"decision"`
}

// cmdExport runs the same Expansion Planner walk as ls, but bundles
// each surviving entry's documentation and source text, respecting
// bundle_source_cap and the .ctignore name-and-signature-only rule
// for matched entries (spec §9 end-to-end scenario 6).
func (d *Daemon) cmdExport(ctx context.Context, g *generation, req types.Request) (any, bool, *types.DecisionInfo, error) {
	var p exportParams
	if err := decodeParams(req.Params, &p); err != nil {
		return nil, false, nil, err
	}
	root, err := query.ResolveByPath(ctx, g.store, p.Path)
	if err != nil {
		return nil, false, nil, translateStoreErr(err)
	}

	maxSize := p.MaxContextSize
	if maxSize <= 0 {
		maxSize = d.cfg.MaxContextSize
	}
	decision := req.Decision
	if decision == "" {
		decision = p.Decision
	}
	result, err := g.planner.Plan(ctx, root, p.Expansion, p.ImplParents, expand.Config{MaxContextSize: maxSize, AllowFullContext: d.cfg.AllowFullContext}, decision)
	if err != nil {
		return nil, false, nil, translateExpandErr(err)
	}
	if result.DecisionRequired != nil {
		return nil, false, result.DecisionRequired, nil
	}

	items := make([]ExportItem, 0, len(result.Entries))
	for _, e := range result.Entries {
		item := ExportItem{Symbol: e.Symbol}
		if e.Ignored {
			e.Symbol.Docs = ""
		} else {
			item.Docs = e.Symbol.Docs
			item.Source = d.readSourceExcerpt(ctx, g, e.Symbol)
		}
		items = append(items, item)
	}
	return items, result.Truncated, nil, nil
}

// readSourceExcerpt reads the symbol's source span, bounded by
// bundle_source_cap characters (spec §6.5). A read failure yields an
// empty excerpt rather than failing the whole export: source
// embedding is a convenience, not correctness-critical.
func (d *Daemon) readSourceExcerpt(ctx context.Context, g *generation, sym *types.Symbol) string {
	if sym.FileID == 0 {
		return "" // synthetic impl entries have no backing file
	}
	file, err := g.store.GetFile(ctx, sym.FileID)
	if err != nil {
		return ""
	}
	f, err := os.Open(file.Path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if line < sym.SpanStart {
			continue
		}
		if line > sym.SpanEnd {
			break
		}
		lines = append(lines, scanner.Text())
	}

	excerpt := strings.Join(lines, "\n")
	maxLen := d.cfg.BundleSourceCap
	if maxLen > 0 && len(excerpt) > maxLen {
		excerpt = excerpt[:maxLen]
	}
	return excerpt
}
