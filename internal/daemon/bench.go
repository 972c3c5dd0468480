package daemon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dshills/ct/internal/query"
	"github.com/dshills/ct/pkg/types"
)

// BenchReport is bench's result: how many synthetic find queries ran
// against the live generation before bench_duration_s elapsed, and
// their latency distribution.
type BenchReport struct {
	QueriesRun    int     `json:"queries_run"`
	ElapsedMs     int64   `json:"elapsed_ms"`
	QueriesPerSec float64 `json:"queries_per_sec"`
	P50Us         int64   `json:"p50_us"`
	P99Us         int64   `json:"p99_us"`
}

type benchParams struct {
	Queries   int `json:"bench_queries"`
	DurationS int `json:"bench_duration_s"`
}

// cmdBench drives repeated find() calls against names already present
// in the catalog, round-robin, for up to bench_duration_s seconds or
// bench_queries queries, whichever comes first (spec.md §6.2 names
// bench without specifying it further; semantics fixed in
// SPEC_FULL.md).
func (d *Daemon) cmdBench(ctx context.Context, g *generation, req types.Request) (any, bool, *types.DecisionInfo, error) {
	var p benchParams
	if err := decodeParams(req.Params, &p); err != nil {
		return nil, false, nil, err
	}
	queries := p.Queries
	if queries <= 0 {
		queries = d.cfg.BenchQueries
	}
	durationS := p.DurationS
	if durationS <= 0 {
		durationS = d.cfg.BenchDurationS
	}

	names, err := benchNames(ctx, g.store, queries)
	if err != nil {
		return nil, false, nil, err
	}
	if len(names) == 0 {
		return &BenchReport{}, false, nil, nil
	}

	deadline := time.Now().Add(time.Duration(durationS) * time.Second)
	start := time.Now()
	latencies := make([]time.Duration, 0, queries)

	for run := 0; run < queries && time.Now().Before(deadline); run++ {
		name := names[run%len(names)]
		qStart := time.Now()
		if _, err := g.resolver.Find(ctx, query.FindRequest{Query: name, Limit: d.cfg.MaxList}); err != nil {
			return nil, false, nil, fmt.Errorf("daemon: bench query %q: %w", name, err)
		}
		latencies = append(latencies, time.Since(qStart))
	}

	elapsed := time.Since(start)
	report := &BenchReport{
		QueriesRun: len(latencies),
		ElapsedMs:  elapsed.Milliseconds(),
	}
	if elapsed > 0 {
		report.QueriesPerSec = float64(len(latencies)) / elapsed.Seconds()
	}
	report.P50Us, report.P99Us = percentiles(latencies)
	return report, false, nil, nil
}

// benchNames pulls up to n distinct symbol names from the catalog to
// drive find() with. It samples across every status (implemented,
// unimplemented, todo) rather than restricting to unimplemented/todo
// symbols, so the synthetic load exercises the catalog the way real
// find() traffic would.
func benchNames(ctx context.Context, store interface {
	StatusItems(ctx context.Context, vis types.Visibility, unimpl, todo bool, limit int) ([]*types.Symbol, error)
}, n int) ([]string, error) {
	if n <= 0 {
		n = 1
	}
	syms, err := store.StatusItems(ctx, "", false, false, n)
	if err != nil {
		return nil, fmt.Errorf("daemon: sample bench names: %w", err)
	}
	names := make([]string, 0, len(syms))
	for _, s := range syms {
		names = append(names, s.Name)
	}
	return names, nil
}

func percentiles(d []time.Duration) (p50, p99 int64) {
	if len(d) == 0 {
		return 0, 0
	}
	sorted := make([]time.Duration, len(d))
	copy(sorted, d)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx50 := (len(sorted) * 50) / 100
	if idx50 >= len(sorted) {
		idx50 = len(sorted) - 1
	}
	idx99 := (len(sorted) * 99) / 100
	if idx99 >= len(sorted) {
		idx99 = len(sorted) - 1
	}
	return sorted[idx50].Microseconds(), sorted[idx99].Microseconds()
}
