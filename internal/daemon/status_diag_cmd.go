package daemon

import (
	"context"

	"github.com/dshills/ct/internal/query"
	"github.com/dshills/ct/pkg/types"
)

type statusParams struct {
	Visibility           string `json:"visibility"`
	IncludeUnimplemented bool   `json:"include_unimplemented"`
	IncludeTodo          bool   `json:"include_todo"`
	Limit                int    `json:"limit"`
}

func (d *Daemon) cmdStatus(ctx context.Context, g *generation, req types.Request) (any, bool, *types.DecisionInfo, error) {
	var p statusParams
	if err := decodeParams(req.Params, &p); err != nil {
		return nil, false, nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = d.cfg.MaxList
	}
	report, err := query.Status(ctx, g.store, query.StatusFilters{
		Visibility:           types.Visibility(p.Visibility),
		IncludeUnimplemented: p.IncludeUnimplemented,
		IncludeTodo:          p.IncludeTodo,
		Limit:                limit,
	})
	if err != nil {
		return nil, false, nil, err
	}
	return report, false, nil, nil
}

func (d *Daemon) cmdDiag(ctx context.Context, g *generation, req types.Request) (any, bool, *types.DecisionInfo, error) {
	report, err := query.Diag(ctx, g.store, d.cfg.DBPath(d.fingerprint), string(d.cfg.EffectiveTransport()), d.lastIndexDuration)
	if err != nil {
		return nil, false, nil, err
	}
	return report, false, nil, nil
}
