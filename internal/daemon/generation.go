package daemon

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/internal/expand"
	"github.com/dshills/ct/internal/fingerprint"
	"github.com/dshills/ct/internal/ignore"
	"github.com/dshills/ct/internal/query"
)

// generation is one immutable snapshot of the catalog: the store
// handle that was live when it was built, plus the resolver/planner
// built on top of it. A request that begins against a generation
// completes against it even if a reindex swaps in a new one
// mid-request (spec §5's ordering guarantee).
type generation struct {
	store        catalog.Store
	resolver     *query.Resolver
	planner      *expand.Planner
	matcher      *ignore.Matcher
	toolMismatch bool

	refs      atomic.Int32
	draining  atomic.Bool
	closeOnce sync.Once
}

func newGeneration(store catalog.Store, resolver *query.Resolver, matcher *ignore.Matcher, toolMismatch bool) *generation {
	return &generation{
		store:        store,
		resolver:     resolver,
		planner:      expand.NewPlanner(store, matcher),
		matcher:      matcher,
		toolMismatch: toolMismatch,
	}
}

// toolFingerprintMismatch reports whether store's recorded §4.1
// tool-environment fingerprint (written at the last commit that
// touched it) differs from the fingerprint of the binary running
// right now. A store with no recorded fingerprint yet (never
// ingested) is not a mismatch.
func toolFingerprintMismatch(ctx context.Context, store catalog.Store) bool {
	stored, err := store.GetMeta(ctx, "extractor_fingerprint")
	if err != nil || stored == "" {
		return false
	}
	current, err := fingerprint.CurrentFingerprint()
	if err != nil {
		return false
	}
	return stored != current
}

func (g *generation) release() {
	left := g.refs.Add(-1)
	if left == 0 && g.draining.Load() {
		g.close()
	}
}

// retire marks the generation as no longer live; once every
// in-flight request holding it has released, its store is closed.
func (g *generation) retire() {
	g.draining.Store(true)
	if g.refs.Load() == 0 {
		g.close()
	}
}

func (g *generation) close() {
	g.closeOnce.Do(func() {
		_ = g.store.Close()
	})
}

// generationHandle is a holder swapped atomically by reindex commits.
type generationHandle struct {
	ptr atomic.Pointer[generation]
}

// load acquires a reference to whichever generation is current and
// returns it, retrying against the next generation if it raced a
// retire: incrementing refs and checking draining must happen under
// the same guard retire respects, or a swap+retire between Load and
// acquisition could close the store out from under a request that
// believes it holds a live reference (spec §5).
func (h *generationHandle) load() *generation {
	for {
		g := h.ptr.Load()
		g.refs.Add(1)
		if !g.draining.Load() {
			return g
		}
		if left := g.refs.Add(-1); left == 0 {
			g.close()
		}
	}
}

// swap installs next as the live generation and retires the
// previous one.
func (h *generationHandle) swap(next *generation) {
	prev := h.ptr.Swap(next)
	if prev != nil {
		prev.retire()
	}
}
