package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/internal/ignore"
	"github.com/dshills/ct/internal/ingest"
	"github.com/dshills/ct/internal/query"
	"github.com/dshills/ct/pkg/types"
)

// cmdReindex runs a full reindex of the workspace, coalescing
// concurrent reindex requests onto a single in-flight run via
// singleflight the way spec §5 requires ("only one reindex is active
// at a time").
func (d *Daemon) cmdReindex(ctx context.Context, req types.Request) (any, bool, *types.DecisionInfo, error) {
	v, err, _ := d.reindexOnce.Do("reindex", func() (any, error) {
		return d.fullReindex(ctx)
	})
	if err != nil {
		return nil, false, nil, err
	}
	return v, false, nil, nil
}

// fullReindex rebuilds the entire catalog into a fresh side store and
// swaps it in atomically; used by the explicit reindex command. The
// watcher-triggered path (ReindexUnits) is narrower: it only
// re-ingests the units the filesystem event touched and copies
// everything else forward unchanged.
func (d *Daemon) fullReindex(ctx context.Context) (*ingest.Report, error) {
	start := time.Now()
	livePath := d.cfg.DBPath(d.fingerprint)

	side, err := catalog.PrepareSide(ctx, livePath)
	if err != nil {
		return nil, fmt.Errorf("daemon: prepare side store: %w", err)
	}

	report, err := ingest.IngestWorkspace(ctx, side, d.workspaceRoot, &ingest.Config{
		Workers:          d.cfg.Workers,
		ReferenceCeiling: d.cfg.ReferencesTopN,
	})
	if err != nil {
		_ = side.Close()
		return nil, fmt.Errorf("daemon: reindex: %w", err)
	}

	if err := d.commitAndSwap(ctx, side, livePath); err != nil {
		return nil, err
	}
	d.lastIndexDuration = time.Since(start)
	return report, nil
}

// ReindexUnits implements spec §4.8's incremental reindex: only the
// units named in affected get re-ingested; every other unit's rows
// are copied forward from the current live generation unchanged,
// preserving their file digests.
func (d *Daemon) ReindexUnits(ctx context.Context, affected []string) error {
	_, err, _ := d.reindexOnce.Do("reindex", func() (any, error) {
		return nil, d.incrementalReindex(ctx, affected)
	})
	return err
}

func (d *Daemon) incrementalReindex(ctx context.Context, affected []string) error {
	start := time.Now()
	livePath := d.cfg.DBPath(d.fingerprint)

	affectedSet := make(map[string]bool, len(affected))
	for _, u := range affected {
		affectedSet[u] = true
	}

	current := d.gen.load()
	defer current.release()

	side, err := catalog.PrepareSide(ctx, livePath)
	if err != nil {
		return fmt.Errorf("daemon: prepare side store: %w", err)
	}

	units, err := current.store.ListUnits(ctx)
	if err != nil {
		_ = side.Close()
		return fmt.Errorf("daemon: list units: %w", err)
	}
	for _, u := range units {
		if affectedSet[u.Name] {
			continue
		}
		if err := copyUnit(ctx, current.store, side, u); err != nil {
			_ = side.Close()
			return fmt.Errorf("daemon: copy unaffected unit %s: %w", u.Name, err)
		}
	}

	if _, err := ingest.IngestUnits(ctx, side, d.workspaceRoot, affected, &ingest.Config{
		Workers:          d.cfg.Workers,
		ReferenceCeiling: d.cfg.ReferencesTopN,
	}); err != nil {
		_ = side.Close()
		return fmt.Errorf("daemon: incremental reindex: %w", err)
	}

	if err := d.commitAndSwap(ctx, side, livePath); err != nil {
		return err
	}
	d.lastIndexDuration = time.Since(start)
	return nil
}

// commitAndSwap fsyncs and renames side over livePath, reopens a
// fresh handle on it, and installs the new generation.
func (d *Daemon) commitAndSwap(ctx context.Context, side *catalog.SQLiteStore, livePath string) error {
	if err := catalog.CommitSide(side, livePath); err != nil {
		return fmt.Errorf("daemon: commit side store: %w", err)
	}

	newStore, err := catalog.Open(ctx, livePath)
	if err != nil {
		return fmt.Errorf("daemon: reopen live store: %w", err)
	}
	resolver, err := query.NewResolver(newStore, d.cfg.MaxMemMB)
	if err != nil {
		_ = newStore.Close()
		return fmt.Errorf("daemon: build resolver: %w", err)
	}
	matcher, err := ignore.Load(d.workspaceRoot + "/.ctignore")
	if err != nil {
		_ = newStore.Close()
		return fmt.Errorf("daemon: load .ctignore: %w", err)
	}

	d.gen.swap(newGeneration(newStore, resolver, matcher, toolFingerprintMismatch(ctx, newStore)))
	return nil
}

// copyUnit copies one unit's rows (unit, files, symbols, impls,
// references) from src to dst unchanged, remapping the file/unit
// foreign keys the new store assigns on insert.
func copyUnit(ctx context.Context, src, dst catalog.Store, unit *types.Unit) error {
	newUnit := &types.Unit{Name: unit.Name, Version: unit.Version, Fingerprint: unit.Fingerprint, Root: unit.Root}
	if err := dst.UpsertUnit(ctx, newUnit); err != nil {
		return err
	}

	files, err := src.ListFilesByUnit(ctx, unit.ID)
	if err != nil {
		return err
	}
	fileIDMap := make(map[int64]int64, len(files))
	for _, f := range files {
		newFile := &types.FileRecord{UnitID: newUnit.ID, Path: f.Path, Digest: f.Digest}
		if err := dst.UpsertFile(ctx, newFile); err != nil {
			return err
		}
		fileIDMap[f.ID] = newFile.ID
	}

	symbols, err := src.ListSymbolsByUnit(ctx, unit.ID)
	if err != nil {
		return err
	}
	symbolIDMap := make(map[int64]int64, len(symbols))
	for _, s := range symbols {
		newSym := *s
		newSym.ID = 0
		newSym.UnitID = newUnit.ID
		newSym.FileID = fileIDMap[s.FileID]
		if err := dst.UpsertSymbol(ctx, &newSym); err != nil {
			return err
		}
		symbolIDMap[s.ID] = newSym.ID
	}

	seenForPath := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if seenForPath[s.CanonicalPath] {
			continue
		}
		seenForPath[s.CanonicalPath] = true
		impls, err := src.ListImplsByForPath(ctx, s.CanonicalPath)
		if err != nil {
			return err
		}
		for _, im := range impls {
			newImpl := *im
			newImpl.ID = 0
			newImpl.FileID = fileIDMap[im.FileID]
			if err := dst.UpsertImpl(ctx, &newImpl); err != nil {
				return err
			}
		}
	}

	for oldSymID, newSymID := range symbolIDMap {
		refs, err := src.ListReferencesFrom(ctx, oldSymID)
		if err != nil {
			return err
		}
		for _, r := range refs {
			newRef := *r
			newRef.ID = 0
			newRef.SymbolID = newSymID
			newRef.FileID = fileIDMap[r.FileID]
			if err := dst.UpsertReference(ctx, &newRef); err != nil {
				return err
			}
		}
	}

	return nil
}
