package ingest

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/internal/fingerprint"
	"github.com/dshills/ct/pkg/types"
)

// Config controls one IngestWorkspace run.
type Config struct {
	Workers          int // concurrent units in flight; default runtime.NumCPU()
	ReferenceCeiling int // per-symbol reference cap; default 16
}

// UnitReport is the per-unit outcome of one ingestion pass, per spec
// §4.3's "continues with remaining units, reports per-unit status."
type UnitReport struct {
	Name           string
	SymbolsIndexed int
	Err            error
}

// Report is the aggregate outcome of IngestWorkspace.
type Report struct {
	WorkspaceFingerprint string
	Units                []UnitReport
}

// IngestWorkspace discovers the workspace's member units and stages
// their symbols, impl blocks, and references into store — normally a
// side store opened with catalog.PrepareSide, so the caller can
// commit the new generation atomically once ingestion succeeds.
//
// Fails only if zero units indexed successfully; a single unit's
// extractor failure is recorded in its UnitReport and otherwise
// ignored, per spec §4.3.
func IngestWorkspace(ctx context.Context, store catalog.Store, workspaceRoot string, cfg *Config) (*Report, error) {
	members, err := DiscoverMembers(ctx, workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("ingest: discover workspace members: %w", err)
	}
	return ingestMembers(ctx, store, members, cfg)
}

// IngestUnits runs the same per-unit pipeline as IngestWorkspace but
// restricts ingestion to the named units: the caller (a daemon doing
// an incremental reindex per spec §4.8) is responsible for copying
// every other unit's catalog rows forward unchanged.
func IngestUnits(ctx context.Context, store catalog.Store, workspaceRoot string, unitNames []string, cfg *Config) (*Report, error) {
	all, err := DiscoverMembers(ctx, workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("ingest: discover workspace members: %w", err)
	}
	wanted := make(map[string]bool, len(unitNames))
	for _, n := range unitNames {
		wanted[n] = true
	}
	members := make([]Member, 0, len(unitNames))
	for _, m := range all {
		if wanted[m.Name] {
			members = append(members, m)
		}
	}
	return ingestMembers(ctx, store, members, cfg)
}

func ingestMembers(ctx context.Context, store catalog.Store, members []Member, cfg *Config) (*Report, error) {
	if !pipelineLock.TryAcquire() {
		return nil, fmt.Errorf("ingest: another ingest run is already in progress")
	}
	defer pipelineLock.Release()

	if cfg == nil {
		cfg = &Config{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	roots := make(map[string]string, len(members))
	for _, m := range members {
		roots[m.Name] = m.Dir
	}
	wsFP, err := fingerprint.Workspace(roots)
	if err != nil {
		return nil, fmt.Errorf("ingest: workspace fingerprint: %w", err)
	}

	reports := make([]UnitReport, len(members))
	semaphore := make(chan struct{}, workers)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, member := range members {
		i, member := i, member
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			n, err := ingestUnit(gctx, store, member, cfg)
			mu.Lock()
			reports[i] = UnitReport{Name: member.Name, SymbolsIndexed: n, Err: err}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	succeeded := 0
	for _, r := range reports {
		if r.Err == nil {
			succeeded++
		}
	}
	if succeeded == 0 && len(members) > 0 {
		return &Report{WorkspaceFingerprint: wsFP, Units: reports}, fmt.Errorf("ingest: all %d units failed", len(members))
	}

	if err := recordToolEnvironment(ctx, store); err != nil {
		return nil, fmt.Errorf("ingest: record tool environment: %w", err)
	}

	return &Report{WorkspaceFingerprint: wsFP, Units: reports}, nil
}

// recordToolEnvironment persists the §4.1 tool-environment tuple into
// the store's meta table so diag() can report the real values a
// catalog was built with, instead of the blanks a never-written key
// yields.
func recordToolEnvironment(ctx context.Context, store catalog.Store) error {
	envFP, err := fingerprint.CurrentFingerprint()
	if err != nil {
		return err
	}
	if err := store.SetMeta(ctx, "tool_version", fingerprint.ToolVersion); err != nil {
		return err
	}
	if err := store.SetMeta(ctx, "extractor_fingerprint", envFP); err != nil {
		return err
	}
	if err := store.SetMeta(ctx, "target_triple", fingerprint.TargetTriple()); err != nil {
		return err
	}
	return store.SetMeta(ctx, "feature_set", strings.Join(fingerprint.Features, ","))
}

type pendingFileRef struct {
	file *types.FileRecord
	impl *types.ImplRecord
}

type pendingReference struct {
	ref   *types.Reference
	owner *types.Symbol
	file  *types.FileRecord
}

// ingestUnit parses every file of member, then stages rows into
// store in the order: unit, files, symbols (sorted per spec §4.3
// step 5), impls, references.
func ingestUnit(ctx context.Context, store catalog.Store, member Member, cfg *Config) (int, error) {
	fset := token.NewFileSet()

	type symbolWithFile struct {
		sym  *types.Symbol
		file *types.FileRecord
	}
	var allSymbols []symbolWithFile
	var allImpls []pendingFileRef
	var allRefs []pendingReference
	var fileDigests []string
	var allFiles []*types.FileRecord

	for _, path := range member.GoFiles {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("ExtractorFailed(%s): read %s: %w", member.Name, path, err)
		}
		digest, err := fingerprint.FileDigest(content)
		if err != nil {
			return 0, fmt.Errorf("ExtractorFailed(%s): digest %s: %w", member.Name, path, err)
		}
		fileDigests = append(fileDigests, digest)

		fr := &types.FileRecord{Path: path, Digest: digest}

		astFile, perr := parser.ParseFile(fset, path, content, parser.ParseComments)
		if astFile == nil {
			if perr != nil {
				continue // unparseable file: skip, non-fatal
			}
		}

		pf, err := ParseFile(fset, astFile, member.Name, digest, content, cfg.ReferenceCeiling)
		if err != nil {
			return 0, fmt.Errorf("ExtractorFailed(%s): %w", member.Name, err)
		}
		allFiles = append(allFiles, fr)

		for _, s := range pf.Symbols {
			allSymbols = append(allSymbols, symbolWithFile{sym: s, file: fr})
		}
		for _, im := range pf.Impls {
			allImpls = append(allImpls, pendingFileRef{file: fr, impl: im})
		}
		for i, r := range pf.References {
			allRefs = append(allRefs, pendingReference{ref: r, owner: pf.Symbols[pf.RefOwners[i]], file: fr})
		}
	}

	sort.SliceStable(allSymbols, func(i, j int) bool {
		if allSymbols[i].sym.CanonicalPath != allSymbols[j].sym.CanonicalPath {
			return allSymbols[i].sym.CanonicalPath < allSymbols[j].sym.CanonicalPath
		}
		return allSymbols[i].sym.SpanStart < allSymbols[j].sym.SpanStart
	})

	sort.Strings(fileDigests)
	unitFP, err := fingerprint.DefHash(member.Name+"@"+member.Version, strings.Join(fileDigests, "\n"))
	if err != nil {
		return 0, fmt.Errorf("ExtractorFailed(%s): unit fingerprint: %w", member.Name, err)
	}

	unit := &types.Unit{Name: member.Name, Version: member.Version, Fingerprint: unitFP, Root: member.Dir}
	if err := store.UpsertUnit(ctx, unit); err != nil {
		return 0, fmt.Errorf("ExtractorFailed(%s): upsert unit: %w", member.Name, err)
	}

	seenFiles := make(map[string]bool)
	for _, sf := range allSymbols {
		if seenFiles[sf.file.Path] {
			continue
		}
		seenFiles[sf.file.Path] = true
		sf.file.UnitID = unit.ID
		if err := store.UpsertFile(ctx, sf.file); err != nil {
			return 0, fmt.Errorf("ExtractorFailed(%s): upsert file %s: %w", member.Name, sf.file.Path, err)
		}
	}
	// Files contributing zero symbols still need a row so future
	// incremental reindex can detect them unchanged.
	for _, fr := range allFiles {
		if seenFiles[fr.Path] {
			continue
		}
		seenFiles[fr.Path] = true
		fr.UnitID = unit.ID
		if err := store.UpsertFile(ctx, fr); err != nil {
			return 0, fmt.Errorf("ExtractorFailed(%s): upsert file %s: %w", member.Name, fr.Path, err)
		}
	}

	indexed := 0
	for _, sf := range allSymbols {
		sf.sym.UnitID = unit.ID
		sf.sym.FileID = sf.file.ID
		if err := store.UpsertSymbol(ctx, sf.sym); err != nil {
			return indexed, fmt.Errorf("ExtractorFailed(%s): upsert symbol %s: %w", member.Name, sf.sym.CanonicalPath, err)
		}
		indexed++
	}

	for _, pr := range allImpls {
		pr.impl.FileID = pr.file.ID
		if err := store.UpsertImpl(ctx, pr.impl); err != nil {
			return indexed, fmt.Errorf("ExtractorFailed(%s): upsert impl %s: %w", member.Name, pr.impl.ForPath, err)
		}
	}

	for _, pr := range allRefs {
		pr.ref.SymbolID = pr.owner.ID
		pr.ref.FileID = pr.file.ID
		if err := store.UpsertReference(ctx, pr.ref); err != nil {
			return indexed, fmt.Errorf("ExtractorFailed(%s): upsert reference to %s: %w", member.Name, pr.ref.TargetPath, err)
		}
	}

	return indexed, nil
}
