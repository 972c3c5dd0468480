package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/pkg/types"
)

const defaultStatusListLimit = 200

// StatusFilters narrows the aggregate and the bounded item list of
// Status (spec §4.6).
type StatusFilters struct {
	Visibility           types.Visibility // empty: both
	IncludeUnimplemented bool
	IncludeTodo          bool
	Limit                int
}

// StatusReport is the aggregate counts plus a bounded sample of
// matching entries returned by Status.
type StatusReport struct {
	Total         int
	Implemented   int
	Unimplemented int
	Todo          int
	Items         []*types.Symbol
}

// Status implements spec §4.6's status(filters) operation: aggregate
// counts over the whole catalog plus a bounded list of entries
// matching the visibility/status filters.
func Status(ctx context.Context, store catalog.Store, f StatusFilters) (*StatusReport, error) {
	total, implemented, unimplemented, todo, err := store.CountSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: count symbols: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultStatusListLimit
	}
	items, err := store.StatusItems(ctx, f.Visibility, f.IncludeUnimplemented, f.IncludeTodo, limit)
	if err != nil {
		return nil, fmt.Errorf("query: status items: %w", err)
	}

	return &StatusReport{
		Total:         total,
		Implemented:   implemented,
		Unimplemented: unimplemented,
		Todo:          todo,
		Items:         items,
	}, nil
}

// DiagReport is the static snapshot returned by diag() (spec §4.6).
type DiagReport struct {
	CatalogPath          string
	SchemaVersion        string
	ToolVersion          string
	ProtocolVersions     []int
	TotalSymbols         int
	LastIndexDuration    time.Duration
	ExtractorFingerprint string
	FeatureSet           []string
	TargetTriple         string
	Transport            string
}

// Diag assembles a DiagReport from the store's meta table and the
// caller-supplied runtime facts the store itself doesn't know
// (transport kind, last index duration — tracked by the daemon).
func Diag(ctx context.Context, store catalog.Store, catalogPath, transport string, lastIndexDuration time.Duration) (*DiagReport, error) {
	schemaVersion, err := store.GetMeta(ctx, "schema_version")
	if err != nil && err != catalog.ErrNotFound {
		return nil, fmt.Errorf("query: read schema_version: %w", err)
	}
	toolVersion, err := store.GetMeta(ctx, "tool_version")
	if err != nil && err != catalog.ErrNotFound {
		return nil, fmt.Errorf("query: read tool_version: %w", err)
	}
	extractorFP, err := store.GetMeta(ctx, "extractor_fingerprint")
	if err != nil && err != catalog.ErrNotFound {
		return nil, fmt.Errorf("query: read extractor_fingerprint: %w", err)
	}
	targetTriple, err := store.GetMeta(ctx, "target_triple")
	if err != nil && err != catalog.ErrNotFound {
		return nil, fmt.Errorf("query: read target_triple: %w", err)
	}
	featureSet, err := store.GetMeta(ctx, "feature_set")
	if err != nil && err != catalog.ErrNotFound {
		return nil, fmt.Errorf("query: read feature_set: %w", err)
	}

	total, _, _, _, err := store.CountSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: count symbols: %w", err)
	}

	var features []string
	if featureSet != "" {
		features = strings.Split(featureSet, ",")
	}

	return &DiagReport{
		CatalogPath:          catalogPath,
		SchemaVersion:        schemaVersion,
		ToolVersion:          toolVersion,
		ProtocolVersions:     []int{types.ProtocolVersion},
		TotalSymbols:         total,
		LastIndexDuration:    lastIndexDuration,
		ExtractorFingerprint: extractorFP,
		FeatureSet:           features,
		TargetTriple:         targetTriple,
		Transport:            transport,
	}, nil
}
