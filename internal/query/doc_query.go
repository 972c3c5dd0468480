package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/pkg/types"
)

// DocResult is the output of Doc (spec §4.6): a symbol's header and
// normalized signature, with docs included only on request.
type DocResult struct {
	Symbol *types.Symbol
	Docs   string // empty unless includeDocs
}

// ResolveByPath returns the unique symbol at canonicalPath:
// catalog.ErrNotFound if none exists, ErrAmbiguous if more than one
// row shares it (e.g. the same canonical path indexed under two
// versions of a unit).
func ResolveByPath(ctx context.Context, store catalog.Store, canonicalPath string) (*types.Symbol, error) {
	syms, err := store.QueryByPath(ctx, canonicalPath)
	if err != nil {
		return nil, fmt.Errorf("query: resolve %s: %w", canonicalPath, err)
	}
	if len(syms) == 0 {
		return nil, catalog.ErrNotFound
	}
	if len(syms) > 1 {
		return nil, fmt.Errorf("%w: %d symbols share path %s", ErrAmbiguous, len(syms), canonicalPath)
	}
	return syms[0], nil
}

// ErrAmbiguous is ResolveByPath's sentinel for a canonical path shared
// by more than one symbol; the daemon maps it to types.ErrAmbiguous.
var ErrAmbiguous = errors.New("query: ambiguous path")

// Doc resolves path and builds its DocResult. includeDocs gates
// whether the raw documentation markup is attached.
func Doc(ctx context.Context, store catalog.Store, path string, includeDocs bool) (*DocResult, error) {
	sym, err := ResolveByPath(ctx, store, path)
	if err != nil {
		return nil, err
	}
	res := &DocResult{Symbol: sym}
	if includeDocs {
		res.Docs = sym.Docs
	} else {
		sym.Docs = ""
	}
	return res, nil
}
