package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/internal/expand"
	"github.com/dshills/ct/internal/query"
	"github.com/dshills/ct/pkg/types"
)

// dispatch decodes req.Params into the command's parameter shape,
// runs it against the generation live when the request began, and
// builds the matching response envelope. The generation is released
// exactly once, regardless of which return path is taken.
func (d *Daemon) dispatch(ctx context.Context, req types.Request) types.Response {
	start := time.Now()
	g := d.gen.load()
	defer g.release()

	if g.toolMismatch && req.Cmd != "reindex" {
		return errorResponse(req.RequestID, fmt.Errorf("%w: catalog was built by a different tool/environment", errFingerprintMismatch))
	}

	data, truncated, decision, err := d.runCommand(ctx, g, req)
	elapsed := time.Since(start)

	if err != nil {
		return errorResponse(req.RequestID, err)
	}
	if decision != nil {
		return types.Decision(req.RequestID, *decision)
	}
	b, _ := json.Marshal(data)
	return types.Success(req.RequestID, data, truncated, types.Metrics{ElapsedMs: elapsed.Milliseconds(), Bytes: len(b)})
}

func (d *Daemon) runCommand(ctx context.Context, g *generation, req types.Request) (data any, truncated bool, decision *types.DecisionInfo, err error) {
	switch req.Cmd {
	case "find":
		return d.cmdFind(ctx, g, req)
	case "doc":
		return d.cmdDoc(ctx, g, req)
	case "ls":
		return d.cmdLs(ctx, g, req)
	case "export":
		return d.cmdExport(ctx, g, req)
	case "status":
		return d.cmdStatus(ctx, g, req)
	case "diag":
		return d.cmdDiag(ctx, g, req)
	case "reindex":
		return d.cmdReindex(ctx, req)
	case "bench":
		return d.cmdBench(ctx, g, req)
	default:
		return nil, false, nil, fmt.Errorf("%w: unknown command %q", errInvalidArg, req.Cmd)
	}
}

var errInvalidArg = errors.New("daemon: invalid argument")

func decodeParams(params map[string]any, out any) error {
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: re-encode params: %v", errInvalidArg, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: decode params: %v", errInvalidArg, err)
	}
	return nil
}

type findParams struct {
	Query                string `json:"query"`
	ContextPath          string `json:"context_path"`
	Kind                 string `json:"kind"`
	Visibility           string `json:"visibility"`
	IncludeUnimplemented bool   `json:"include_unimplemented"`
	IncludeTodo          bool   `json:"include_todo"`
	Limit                int    `json:"limit"`
}

func (d *Daemon) cmdFind(ctx context.Context, g *generation, req types.Request) (any, bool, *types.DecisionInfo, error) {
	var p findParams
	if err := decodeParams(req.Params, &p); err != nil {
		return nil, false, nil, err
	}
	hits, err := g.resolver.Find(ctx, query.FindRequest{
		Query:                p.Query,
		ContextPath:          p.ContextPath,
		Kind:                 types.SymbolKind(p.Kind),
		Visibility:           types.Visibility(p.Visibility),
		IncludeUnimplemented: p.IncludeUnimplemented,
		IncludeTodo:          p.IncludeTodo,
		Limit:                p.Limit,
	})
	if err != nil {
		return nil, false, nil, err
	}
	return hitsToSymbols(hits), false, nil, nil
}

type docParams struct {
	Path        string `json:"path"`
	IncludeDocs bool   `json:"include_docs"`
}

func (d *Daemon) cmdDoc(ctx context.Context, g *generation, req types.Request) (any, bool, *types.DecisionInfo, error) {
	var p docParams
	if err := decodeParams(req.Params, &p); err != nil {
		return nil, false, nil, err
	}
	result, err := query.Doc(ctx, g.store, p.Path, p.IncludeDocs)
	if err != nil {
		return nil, false, nil, translateStoreErr(err)
	}
	return result, false, nil, nil
}

type lsParams struct {
	Path           string `json:"path"`
	Expansion      string `json:"expansion"`
	ImplParents    bool   `json:"impl_parents"`
	MaxContextSize int    `json:"max_context_size"`
	Decision       string `json:"decision"`
}

func (d *Daemon) cmdLs(ctx context.Context, g *generation, req types.Request) (any, bool, *types.DecisionInfo, error) {
	var p lsParams
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
	return entriesToSymbols(result.Entries), result.Truncated, nil, nil
}

func hitsToSymbols(hits []query.Hit) []*types.Symbol {
	out := make([]*types.Symbol, len(hits))
	for i, h := range hits {
		out[i] = h.Symbol
	}
	return out
}

func entriesToSymbols(entries []expand.Entry) []*types.Symbol {
	out := make([]*types.Symbol, len(entries))
	for i, e := range entries {
		out[i] = e.Symbol
	}
	return out
}

func translateStoreErr(err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("%w: %v", errNotFound, err)
	}
	if errors.Is(err, query.ErrAmbiguous) {
		return fmt.Errorf("%w: %v", errAmbiguous, err)
	}
	return err
}

func translateExpandErr(err error) error {
	if errors.Is(err, expand.ErrAborted) {
		return fmt.Errorf("%w: %v", errOverMaxContext, err)
	}
	if errors.Is(err, expand.ErrFullContextNotAllowed) {
		return fmt.Errorf("%w: %v", errInvalidArg, err)
	}
	return err
}

var (
	errNotFound            = errors.New("daemon: not found")
	errAmbiguous           = errors.New("daemon: ambiguous path")
	errOverMaxContext      = errors.New("daemon: over max context")
	errFingerprintMismatch = errors.New("daemon: tool fingerprint mismatch")
)

func errorResponse(requestID string, err error) types.Response {
	code := types.ErrInternal
	switch {
	case errors.Is(err, errInvalidArg):
		code = types.ErrInvalidArg
	case errors.Is(err, errNotFound):
		code = types.ErrNotFound
	case errors.Is(err, errAmbiguous):
		code = types.ErrAmbiguous
	case errors.Is(err, errOverMaxContext):
		code = types.ErrOverMaxContext
	case errors.Is(err, errFingerprintMismatch):
		code = types.ErrIndexMismatch
	case errors.Is(err, catalog.ErrBusy):
		code = types.ErrBusy
	}
	return types.ErrorResponse(requestID, code, err)
}
