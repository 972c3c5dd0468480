package catalog

import (
	"context"
	"errors"

	"github.com/dshills/ct/pkg/types"
)

// Sentinel errors returned by Store methods, in the teacher's idiom
// of typed lookup-miss/conflict signals rather than ad hoc string
// matching by callers.
var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrAlreadyExists = errors.New("catalog: already exists")
	ErrBusy          = errors.New("catalog: side store already in use")
)

// CurrentSchemaVersion is compared against the meta table's
// schema_version on open: an older stored version is migrated
// forward, while a newer or unparseable one yields StoreCorrupt via
// ApplyMigrations or Open.
const CurrentSchemaVersion = "1.0.0"

// Store is the durable relational store described in spec §4.2. A
// Store opened with Open is a read/write handle on the live
// generation; PrepareSide opens a second, independent handle on a
// side file for the ingestor to populate before CommitSide atomically
// replaces the live file.
type Store interface {
	// Unit operations
	UpsertUnit(ctx context.Context, u *types.Unit) error
	GetUnitByName(ctx context.Context, name string) (*types.Unit, error)
	ListUnits(ctx context.Context) ([]*types.Unit, error)
	DeleteUnit(ctx context.Context, unitID int64) error

	// File operations
	UpsertFile(ctx context.Context, f *types.FileRecord) error
	GetFile(ctx context.Context, fileID int64) (*types.FileRecord, error)
	GetFileByPath(ctx context.Context, unitID int64, path string) (*types.FileRecord, error)
	ListFilesByUnit(ctx context.Context, unitID int64) ([]*types.FileRecord, error)
	DeleteFilesByUnit(ctx context.Context, unitID int64) error

	// Symbol operations
	UpsertSymbol(ctx context.Context, s *types.Symbol) error
	ReadSymbol(ctx context.Context, id int64) (*types.Symbol, error)
	ReadSymbolBySymbolID(ctx context.Context, symbolID string) (*types.Symbol, error)
	QueryByPath(ctx context.Context, canonicalPath string) ([]*types.Symbol, error)
	QueryByName(ctx context.Context, lowerName string, limit int) ([]*types.Symbol, error)
	QueryByNamePrefix(ctx context.Context, lowerPrefix string, limit int) ([]*types.Symbol, error)
	QueryByPathPrefix(ctx context.Context, prefix string, limit int) ([]*types.Symbol, error)
	ListSymbolsByUnit(ctx context.Context, unitID int64) ([]*types.Symbol, error)
	ListSymbolsByFile(ctx context.Context, fileID int64) ([]*types.Symbol, error)
	DeleteSymbolsByUnit(ctx context.Context, unitID int64) error
	CountSymbols(ctx context.Context) (total, implemented, unimplemented, todo int, err error)
	StatusItems(ctx context.Context, visibility types.Visibility, includeUnimplemented, includeTodo bool, limit int) ([]*types.Symbol, error)

	// Impl block operations
	UpsertImpl(ctx context.Context, im *types.ImplRecord) error
	ListImplsByForPath(ctx context.Context, forPath string) ([]*types.ImplRecord, error)

	// Reference operations
	UpsertReference(ctx context.Context, r *types.Reference) error
	ListReferencesTo(ctx context.Context, targetPath string, limit int) ([]*types.Reference, error)
	ListReferencesFrom(ctx context.Context, symbolID int64) ([]*types.Reference, error)

	// Meta operations
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, val string) error

	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents an in-flight write transaction on a Store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}
