package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Migration is one forward schema step, applied in order by
// ApplyMigrations and recorded in the meta table's schema_version
// key. The pattern — an ordered slice of versioned SQL blocks
// compared with semver — is the teacher's own
// (internal/storage/migrations.go); only the schema content differs.
type Migration struct {
	Version string
	Up      string
}

// AllMigrations is applied in slice order. Keep new entries strictly
// increasing in semver.
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up: `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	val TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS units (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	version TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL,
	root TEXT NOT NULL,
	UNIQUE(name, version)
);

CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	unit_id INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	digest TEXT NOT NULL,
	UNIQUE(unit_id, path)
);
CREATE INDEX IF NOT EXISTS ix_files_unit ON files(unit_id);

CREATE TABLE IF NOT EXISTS symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol_id TEXT NOT NULL,
	unit_id INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	canonical_path TEXT NOT NULL,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	visibility TEXT NOT NULL,
	signature TEXT NOT NULL,
	docs TEXT,
	status TEXT NOT NULL,
	span_start INTEGER NOT NULL,
	span_end INTEGER NOT NULL,
	def_hash TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_symbols_symbol_id ON symbols(symbol_id);
CREATE INDEX IF NOT EXISTS ix_symbols_name ON symbols(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS ix_symbols_path ON symbols(canonical_path);
CREATE INDEX IF NOT EXISTS ix_symbols_kind ON symbols(kind);
CREATE INDEX IF NOT EXISTS ix_symbols_visibility ON symbols(visibility);
CREATE INDEX IF NOT EXISTS ix_symbols_status ON symbols(status);
CREATE INDEX IF NOT EXISTS ix_symbols_unit ON symbols(unit_id);
CREATE INDEX IF NOT EXISTS ix_symbols_file ON symbols(file_id);

CREATE TABLE IF NOT EXISTS impls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	for_path TEXT NOT NULL,
	trait_path TEXT,
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	line_start INTEGER NOT NULL,
	line_end INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_impls_for_path ON impls(for_path);

CREATE TABLE IF NOT EXISTS symbol_references (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol_id INTEGER NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
	target_path TEXT NOT NULL,
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	span_start INTEGER NOT NULL,
	span_end INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_refs_symbol ON symbol_references(symbol_id);
CREATE INDEX IF NOT EXISTS ix_refs_target ON symbol_references(target_path, span_start);
`,
	},
}

// ApplyMigrations brings db up to CurrentSchemaVersion, skipping
// migrations whose version is not newer than the stored
// schema_version. A fresh database has no meta row yet, so every
// migration runs.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, val TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("catalog: ensure meta table: %w", err)
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}
	if current != nil && current.GreaterThan(semver.MustParse(CurrentSchemaVersion)) {
		return fmt.Errorf("%w: stored schema_version %s is newer than supported %s", ErrStoreCorrupt, current, CurrentSchemaVersion)
	}

	for _, m := range AllMigrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("catalog: invalid migration version %q: %w", m.Version, err)
		}
		if current != nil && !v.GreaterThan(current) {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("catalog: begin migration tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("catalog: apply migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta(key, val) VALUES('schema_version', ?)
			 ON CONFLICT(key) DO UPDATE SET val = excluded.val`, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("catalog: record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("catalog: commit migration %s: %w", m.Version, err)
		}
	}
	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var val string
	err := db.QueryRowContext(ctx, `SELECT val FROM meta WHERE key = 'schema_version'`).Scan(&val)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read schema_version: %w", err)
	}
	v, err := semver.NewVersion(val)
	if err != nil {
		return nil, fmt.Errorf("%w: stored schema_version %q is not semver", ErrStoreCorrupt, val)
	}
	return v, nil
}

// ErrStoreCorrupt is returned when the on-disk schema_version cannot
// be parsed or recognized, per spec's StoreCorrupt failure mode.
var ErrStoreCorrupt = fmt.Errorf("catalog: store corrupt")
