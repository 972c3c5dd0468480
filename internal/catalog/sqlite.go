package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/dshills/ct/pkg/types"
)

// querier is implemented by both *sql.DB and *sql.Tx, letting every
// xxxWithQuerier helper below run either directly or inside a
// transaction without duplicating SQL.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore is a Store backed by a SQLite file, opened in WAL mode
// with a single writer connection, matching the teacher's own
// openDatabase concurrency posture.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the catalog file at path and
// applies any pending migrations. A schema_version present but not
// recognized by ApplyMigrations surfaces ErrStoreCorrupt.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	if err := configurePragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func configurePragmas(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("catalog: %s: %w", p, err)
		}
	}
	return nil
}

// Path returns the file this store was opened against.
func (s *SQLiteStore) Path() string { return s.path }

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// BeginTx starts a write transaction. Nested transactions are not
// supported, matching the teacher's sqliteTx.BeginTx behavior.
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin tx: %w", err)
	}
	return &sqliteTx{tx: tx, store: s}, nil
}

type sqliteTx struct {
	tx    *sql.Tx
	store *SQLiteStore
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }
func (t *sqliteTx) Close() error    { return fmt.Errorf("catalog: cannot Close a transaction, Commit or Rollback it") }
func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("catalog: nested transactions not supported")
}

func (t *sqliteTx) UpsertUnit(ctx context.Context, u *types.Unit) error {
	return upsertUnitWithQuerier(ctx, t.tx, u)
}
func (t *sqliteTx) GetUnitByName(ctx context.Context, name string) (*types.Unit, error) {
	return getUnitByNameWithQuerier(ctx, t.tx, name)
}
func (t *sqliteTx) ListUnits(ctx context.Context) ([]*types.Unit, error) {
	return listUnitsWithQuerier(ctx, t.tx)
}
func (t *sqliteTx) DeleteUnit(ctx context.Context, unitID int64) error {
	return deleteUnitWithQuerier(ctx, t.tx, unitID)
}
func (t *sqliteTx) UpsertFile(ctx context.Context, f *types.FileRecord) error {
	return upsertFileWithQuerier(ctx, t.tx, f)
}
func (t *sqliteTx) GetFile(ctx context.Context, fileID int64) (*types.FileRecord, error) {
	return getFileWithQuerier(ctx, t.tx, fileID)
}
func (t *sqliteTx) GetFileByPath(ctx context.Context, unitID int64, path string) (*types.FileRecord, error) {
	return getFileByPathWithQuerier(ctx, t.tx, unitID, path)
}
func (t *sqliteTx) ListFilesByUnit(ctx context.Context, unitID int64) ([]*types.FileRecord, error) {
	return listFilesByUnitWithQuerier(ctx, t.tx, unitID)
}
func (t *sqliteTx) DeleteFilesByUnit(ctx context.Context, unitID int64) error {
	return deleteFilesByUnitWithQuerier(ctx, t.tx, unitID)
}
func (t *sqliteTx) UpsertSymbol(ctx context.Context, s *types.Symbol) error {
	return upsertSymbolWithQuerier(ctx, t.tx, s)
}
func (t *sqliteTx) ReadSymbol(ctx context.Context, id int64) (*types.Symbol, error) {
	return readSymbolWithQuerier(ctx, t.tx, id)
}
func (t *sqliteTx) ReadSymbolBySymbolID(ctx context.Context, symbolID string) (*types.Symbol, error) {
	return readSymbolBySymbolIDWithQuerier(ctx, t.tx, symbolID)
}
func (t *sqliteTx) QueryByPath(ctx context.Context, canonicalPath string) ([]*types.Symbol, error) {
	return queryByPathWithQuerier(ctx, t.tx, canonicalPath)
}
func (t *sqliteTx) QueryByName(ctx context.Context, lowerName string, limit int) ([]*types.Symbol, error) {
	return queryByNameWithQuerier(ctx, t.tx, lowerName, limit)
}
func (t *sqliteTx) QueryByNamePrefix(ctx context.Context, lowerPrefix string, limit int) ([]*types.Symbol, error) {
	return queryByNamePrefixWithQuerier(ctx, t.tx, lowerPrefix, limit)
}
func (t *sqliteTx) QueryByPathPrefix(ctx context.Context, prefix string, limit int) ([]*types.Symbol, error) {
	return queryByPathPrefixWithQuerier(ctx, t.tx, prefix, limit)
}
func (t *sqliteTx) ListSymbolsByUnit(ctx context.Context, unitID int64) ([]*types.Symbol, error) {
	return listSymbolsByUnitWithQuerier(ctx, t.tx, unitID)
}
func (t *sqliteTx) ListSymbolsByFile(ctx context.Context, fileID int64) ([]*types.Symbol, error) {
	return listSymbolsByFileWithQuerier(ctx, t.tx, fileID)
}
func (t *sqliteTx) DeleteSymbolsByUnit(ctx context.Context, unitID int64) error {
	return deleteSymbolsByUnitWithQuerier(ctx, t.tx, unitID)
}
func (t *sqliteTx) CountSymbols(ctx context.Context) (int, int, int, int, error) {
	return countSymbolsWithQuerier(ctx, t.tx)
}
func (t *sqliteTx) StatusItems(ctx context.Context, vis types.Visibility, unimpl, todo bool, limit int) ([]*types.Symbol, error) {
	return statusItemsWithQuerier(ctx, t.tx, vis, unimpl, todo, limit)
}
func (t *sqliteTx) UpsertImpl(ctx context.Context, im *types.ImplRecord) error {
	return upsertImplWithQuerier(ctx, t.tx, im)
}
func (t *sqliteTx) ListImplsByForPath(ctx context.Context, forPath string) ([]*types.ImplRecord, error) {
	return listImplsByForPathWithQuerier(ctx, t.tx, forPath)
}
func (t *sqliteTx) UpsertReference(ctx context.Context, r *types.Reference) error {
	return upsertReferenceWithQuerier(ctx, t.tx, r)
}
func (t *sqliteTx) ListReferencesTo(ctx context.Context, targetPath string, limit int) ([]*types.Reference, error) {
	return listReferencesToWithQuerier(ctx, t.tx, targetPath, limit)
}
func (t *sqliteTx) ListReferencesFrom(ctx context.Context, symbolID int64) ([]*types.Reference, error) {
	return listReferencesFromWithQuerier(ctx, t.tx, symbolID)
}
func (t *sqliteTx) GetMeta(ctx context.Context, key string) (string, error) {
	return getMetaWithQuerier(ctx, t.tx, key)
}
func (t *sqliteTx) SetMeta(ctx context.Context, key, val string) error {
	return setMetaWithQuerier(ctx, t.tx, key, val)
}

// --- Unit ---

func upsertUnitWithQuerier(ctx context.Context, q querier, u *types.Unit) error {
	row := q.QueryRowContext(ctx, `
		INSERT INTO units(name, version, fingerprint, root) VALUES(?, ?, ?, ?)
		ON CONFLICT(name, version) DO UPDATE SET fingerprint = excluded.fingerprint, root = excluded.root
		RETURNING id`,
		u.Name, u.Version, u.Fingerprint, u.Root)
	return row.Scan(&u.ID)
}

func getUnitByNameWithQuerier(ctx context.Context, q querier, name string) (*types.Unit, error) {
	u := &types.Unit{}
	err := q.QueryRowContext(ctx, `SELECT id, name, version, fingerprint, root FROM units WHERE name = ?`, name).
		Scan(&u.ID, &u.Name, &u.Version, &u.Fingerprint, &u.Root)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func listUnitsWithQuerier(ctx context.Context, q querier) ([]*types.Unit, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, version, fingerprint, root FROM units ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Unit
	for rows.Next() {
		u := &types.Unit{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Version, &u.Fingerprint, &u.Root); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func deleteUnitWithQuerier(ctx context.Context, q querier, unitID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM units WHERE id = ?`, unitID)
	return err
}

// --- File ---

func upsertFileWithQuerier(ctx context.Context, q querier, f *types.FileRecord) error {
	row := q.QueryRowContext(ctx, `
		INSERT INTO files(unit_id, path, digest) VALUES(?, ?, ?)
		ON CONFLICT(unit_id, path) DO UPDATE SET digest = excluded.digest
		RETURNING id`,
		f.UnitID, f.Path, f.Digest)
	return row.Scan(&f.ID)
}

func getFileWithQuerier(ctx context.Context, q querier, fileID int64) (*types.FileRecord, error) {
	f := &types.FileRecord{}
	err := q.QueryRowContext(ctx, `SELECT id, unit_id, path, digest FROM files WHERE id = ?`, fileID).
		Scan(&f.ID, &f.UnitID, &f.Path, &f.Digest)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func getFileByPathWithQuerier(ctx context.Context, q querier, unitID int64, path string) (*types.FileRecord, error) {
	f := &types.FileRecord{}
	err := q.QueryRowContext(ctx, `SELECT id, unit_id, path, digest FROM files WHERE unit_id = ? AND path = ?`, unitID, path).
		Scan(&f.ID, &f.UnitID, &f.Path, &f.Digest)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func listFilesByUnitWithQuerier(ctx context.Context, q querier, unitID int64) ([]*types.FileRecord, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, unit_id, path, digest FROM files WHERE unit_id = ? ORDER BY path`, unitID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*types.FileRecord
	for rows.Next() {
		f := &types.FileRecord{}
		if err := rows.Scan(&f.ID, &f.UnitID, &f.Path, &f.Digest); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func deleteFilesByUnitWithQuerier(ctx context.Context, q querier, unitID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM files WHERE unit_id = ?`, unitID)
	return err
}

// --- Symbol ---

func upsertSymbolWithQuerier(ctx context.Context, q querier, s *types.Symbol) error {
	row := q.QueryRowContext(ctx, `
		INSERT INTO symbols(symbol_id, unit_id, file_id, canonical_path, name, kind, visibility,
			signature, docs, status, span_start, span_end, def_hash)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol_id) DO UPDATE SET
			file_id = excluded.file_id,
			canonical_path = excluded.canonical_path,
			name = excluded.name,
			kind = excluded.kind,
			visibility = excluded.visibility,
			signature = excluded.signature,
			docs = excluded.docs,
			status = excluded.status,
			span_start = excluded.span_start,
			span_end = excluded.span_end,
			def_hash = excluded.def_hash
		RETURNING id`,
		s.SymbolID, s.UnitID, s.FileID, s.CanonicalPath, s.Name, string(s.Kind), string(s.Visibility),
		s.Signature, nullableString(s.Docs), string(s.Status), s.SpanStart, s.SpanEnd, s.DefHash)
	return row.Scan(&s.ID)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const symbolColumns = `id, symbol_id, unit_id, file_id, canonical_path, name, kind, visibility,
	signature, COALESCE(docs, ''), status, span_start, span_end, def_hash`

func scanSymbol(row interface{ Scan(...any) error }) (*types.Symbol, error) {
	s := &types.Symbol{}
	var kind, vis, status string
	err := row.Scan(&s.ID, &s.SymbolID, &s.UnitID, &s.FileID, &s.CanonicalPath, &s.Name, &kind, &vis,
		&s.Signature, &s.Docs, &status, &s.SpanStart, &s.SpanEnd, &s.DefHash)
	if err != nil {
		return nil, err
	}
	s.Kind = types.SymbolKind(kind)
	s.Visibility = types.Visibility(vis)
	s.Status = types.Status(status)
	return s, nil
}

func readSymbolWithQuerier(ctx context.Context, q querier, id int64) (*types.Symbol, error) {
	s, err := scanSymbol(q.QueryRowContext(ctx, `SELECT `+symbolColumns+` FROM symbols WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

func readSymbolBySymbolIDWithQuerier(ctx context.Context, q querier, symbolID string) (*types.Symbol, error) {
	s, err := scanSymbol(q.QueryRowContext(ctx, `SELECT `+symbolColumns+` FROM symbols WHERE symbol_id = ?`, symbolID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

func scanSymbolRows(rows *sql.Rows) ([]*types.Symbol, error) {
	defer func() { _ = rows.Close() }()
	var out []*types.Symbol
	for rows.Next() {
		s, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func queryByPathWithQuerier(ctx context.Context, q querier, canonicalPath string) ([]*types.Symbol, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+symbolColumns+` FROM symbols WHERE canonical_path = ? ORDER BY span_start`, canonicalPath)
	if err != nil {
		return nil, err
	}
	return scanSymbolRows(rows)
}

func queryByNameWithQuerier(ctx context.Context, q querier, lowerName string, limit int) ([]*types.Symbol, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+symbolColumns+` FROM symbols
		WHERE name = ? COLLATE NOCASE
		ORDER BY name, canonical_path, span_start LIMIT ?`, lowerName, limit)
	if err != nil {
		return nil, err
	}
	return scanSymbolRows(rows)
}

func queryByNamePrefixWithQuerier(ctx context.Context, q querier, lowerPrefix string, limit int) ([]*types.Symbol, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+symbolColumns+` FROM symbols
		WHERE name LIKE ? ESCAPE '\' COLLATE NOCASE
		ORDER BY name, canonical_path, span_start LIMIT ?`, likePrefix(lowerPrefix), limit)
	if err != nil {
		return nil, err
	}
	return scanSymbolRows(rows)
}

func queryByPathPrefixWithQuerier(ctx context.Context, q querier, prefix string, limit int) ([]*types.Symbol, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+symbolColumns+` FROM symbols
		WHERE canonical_path LIKE ? ESCAPE '\'
		ORDER BY canonical_path, span_start LIMIT ?`, likePrefix(prefix), limit)
	if err != nil {
		return nil, err
	}
	return scanSymbolRows(rows)
}

// likePrefix escapes SQLite LIKE metacharacters so an arbitrary
// canonical-path prefix cannot be misread as a pattern.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

func listSymbolsByUnitWithQuerier(ctx context.Context, q querier, unitID int64) ([]*types.Symbol, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+symbolColumns+` FROM symbols WHERE unit_id = ? ORDER BY canonical_path, span_start`, unitID)
	if err != nil {
		return nil, err
	}
	return scanSymbolRows(rows)
}

func listSymbolsByFileWithQuerier(ctx context.Context, q querier, fileID int64) ([]*types.Symbol, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+symbolColumns+` FROM symbols WHERE file_id = ? ORDER BY span_start`, fileID)
	if err != nil {
		return nil, err
	}
	return scanSymbolRows(rows)
}

func deleteSymbolsByUnitWithQuerier(ctx context.Context, q querier, unitID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM symbols WHERE unit_id = ?`, unitID)
	return err
}

func countSymbolsWithQuerier(ctx context.Context, q querier) (total, implemented, unimplemented, todo int, err error) {
	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols`).Scan(&total)
	if err != nil {
		return
	}
	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols WHERE status = ?`, string(types.StatusImplemented)).Scan(&implemented)
	if err != nil {
		return
	}
	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols WHERE status = ?`, string(types.StatusUnimplemented)).Scan(&unimplemented)
	if err != nil {
		return
	}
	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols WHERE status = ?`, string(types.StatusTodo)).Scan(&todo)
	return
}

func statusItemsWithQuerier(ctx context.Context, q querier, vis types.Visibility, includeUnimplemented, includeTodo bool, limit int) ([]*types.Symbol, error) {
	var clauses []string
	var args []any

	if vis != "" {
		clauses = append(clauses, "visibility = ?")
		args = append(args, string(vis))
	}
	switch {
	case includeUnimplemented && !includeTodo:
		clauses = append(clauses, "status = ?")
		args = append(args, string(types.StatusUnimplemented))
	case includeTodo && !includeUnimplemented:
		clauses = append(clauses, "status = ?")
		args = append(args, string(types.StatusTodo))
	case includeUnimplemented && includeTodo:
		clauses = append(clauses, "(status = ? OR status = ?)")
		args = append(args, string(types.StatusUnimplemented), string(types.StatusTodo))
	}

	query := `SELECT ` + symbolColumns + ` FROM symbols`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY canonical_path LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanSymbolRows(rows)
}

// --- Impl ---

func upsertImplWithQuerier(ctx context.Context, q querier, im *types.ImplRecord) error {
	row := q.QueryRowContext(ctx, `
		INSERT INTO impls(for_path, trait_path, file_id, line_start, line_end)
		VALUES(?, ?, ?, ?, ?)
		RETURNING id`,
		im.ForPath, nullableString(im.TraitPath), im.FileID, im.LineStart, im.LineEnd)
	return row.Scan(&im.ID)
}

func listImplsByForPathWithQuerier(ctx context.Context, q querier, forPath string) ([]*types.ImplRecord, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, for_path, COALESCE(trait_path, ''), file_id, line_start, line_end
		FROM impls WHERE for_path = ? ORDER BY line_start`, forPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*types.ImplRecord
	for rows.Next() {
		im := &types.ImplRecord{}
		if err := rows.Scan(&im.ID, &im.ForPath, &im.TraitPath, &im.FileID, &im.LineStart, &im.LineEnd); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

// --- Reference ---

func upsertReferenceWithQuerier(ctx context.Context, q querier, r *types.Reference) error {
	row := q.QueryRowContext(ctx, `
		INSERT INTO symbol_references(symbol_id, target_path, file_id, span_start, span_end)
		VALUES(?, ?, ?, ?, ?)
		RETURNING id`,
		r.SymbolID, r.TargetPath, r.FileID, r.SpanStart, r.SpanEnd)
	return row.Scan(&r.ID)
}

func listReferencesToWithQuerier(ctx context.Context, q querier, targetPath string, limit int) ([]*types.Reference, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, symbol_id, target_path, file_id, span_start, span_end
		FROM symbol_references WHERE target_path = ?
		ORDER BY target_path, span_start LIMIT ?`, targetPath, limit)
	if err != nil {
		return nil, err
	}
	return scanReferenceRows(rows)
}

func listReferencesFromWithQuerier(ctx context.Context, q querier, symbolID int64) ([]*types.Reference, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, symbol_id, target_path, file_id, span_start, span_end
		FROM symbol_references WHERE symbol_id = ?
		ORDER BY target_path, span_start`, symbolID)
	if err != nil {
		return nil, err
	}
	return scanReferenceRows(rows)
}

func scanReferenceRows(rows *sql.Rows) ([]*types.Reference, error) {
	defer func() { _ = rows.Close() }()
	var out []*types.Reference
	for rows.Next() {
		r := &types.Reference{}
		if err := rows.Scan(&r.ID, &r.SymbolID, &r.TargetPath, &r.FileID, &r.SpanStart, &r.SpanEnd); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Meta ---

func getMetaWithQuerier(ctx context.Context, q querier, key string) (string, error) {
	var val string
	err := q.QueryRowContext(ctx, `SELECT val FROM meta WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return val, err
}

func setMetaWithQuerier(ctx context.Context, q querier, key, val string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO meta(key, val) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET val = excluded.val`, key, val)
	return err
}

// --- direct (non-transactional) Store methods, delegating to the
// WithQuerier helpers against s.db ---

func (s *SQLiteStore) UpsertUnit(ctx context.Context, u *types.Unit) error { return upsertUnitWithQuerier(ctx, s.db, u) }
func (s *SQLiteStore) GetUnitByName(ctx context.Context, name string) (*types.Unit, error) {
	return getUnitByNameWithQuerier(ctx, s.db, name)
}
func (s *SQLiteStore) ListUnits(ctx context.Context) ([]*types.Unit, error) { return listUnitsWithQuerier(ctx, s.db) }
func (s *SQLiteStore) DeleteUnit(ctx context.Context, unitID int64) error   { return deleteUnitWithQuerier(ctx, s.db, unitID) }

func (s *SQLiteStore) UpsertFile(ctx context.Context, f *types.FileRecord) error {
	return upsertFileWithQuerier(ctx, s.db, f)
}
func (s *SQLiteStore) GetFile(ctx context.Context, fileID int64) (*types.FileRecord, error) {
	return getFileWithQuerier(ctx, s.db, fileID)
}
func (s *SQLiteStore) GetFileByPath(ctx context.Context, unitID int64, path string) (*types.FileRecord, error) {
	return getFileByPathWithQuerier(ctx, s.db, unitID, path)
}
func (s *SQLiteStore) ListFilesByUnit(ctx context.Context, unitID int64) ([]*types.FileRecord, error) {
	return listFilesByUnitWithQuerier(ctx, s.db, unitID)
}
func (s *SQLiteStore) DeleteFilesByUnit(ctx context.Context, unitID int64) error {
	return deleteFilesByUnitWithQuerier(ctx, s.db, unitID)
}

func (s *SQLiteStore) UpsertSymbol(ctx context.Context, sym *types.Symbol) error {
	return upsertSymbolWithQuerier(ctx, s.db, sym)
}
func (s *SQLiteStore) ReadSymbol(ctx context.Context, id int64) (*types.Symbol, error) {
	return readSymbolWithQuerier(ctx, s.db, id)
}
func (s *SQLiteStore) ReadSymbolBySymbolID(ctx context.Context, symbolID string) (*types.Symbol, error) {
	return readSymbolBySymbolIDWithQuerier(ctx, s.db, symbolID)
}
func (s *SQLiteStore) QueryByPath(ctx context.Context, canonicalPath string) ([]*types.Symbol, error) {
	return queryByPathWithQuerier(ctx, s.db, canonicalPath)
}
func (s *SQLiteStore) QueryByName(ctx context.Context, lowerName string, limit int) ([]*types.Symbol, error) {
	return queryByNameWithQuerier(ctx, s.db, lowerName, limit)
}
func (s *SQLiteStore) QueryByNamePrefix(ctx context.Context, lowerPrefix string, limit int) ([]*types.Symbol, error) {
	return queryByNamePrefixWithQuerier(ctx, s.db, lowerPrefix, limit)
}
func (s *SQLiteStore) QueryByPathPrefix(ctx context.Context, prefix string, limit int) ([]*types.Symbol, error) {
	return queryByPathPrefixWithQuerier(ctx, s.db, prefix, limit)
}
func (s *SQLiteStore) ListSymbolsByUnit(ctx context.Context, unitID int64) ([]*types.Symbol, error) {
	return listSymbolsByUnitWithQuerier(ctx, s.db, unitID)
}
func (s *SQLiteStore) ListSymbolsByFile(ctx context.Context, fileID int64) ([]*types.Symbol, error) {
	return listSymbolsByFileWithQuerier(ctx, s.db, fileID)
}
func (s *SQLiteStore) DeleteSymbolsByUnit(ctx context.Context, unitID int64) error {
	return deleteSymbolsByUnitWithQuerier(ctx, s.db, unitID)
}
func (s *SQLiteStore) CountSymbols(ctx context.Context) (int, int, int, int, error) {
	return countSymbolsWithQuerier(ctx, s.db)
}
func (s *SQLiteStore) StatusItems(ctx context.Context, vis types.Visibility, unimpl, todo bool, limit int) ([]*types.Symbol, error) {
	return statusItemsWithQuerier(ctx, s.db, vis, unimpl, todo, limit)
}

func (s *SQLiteStore) UpsertImpl(ctx context.Context, im *types.ImplRecord) error {
	return upsertImplWithQuerier(ctx, s.db, im)
}
func (s *SQLiteStore) ListImplsByForPath(ctx context.Context, forPath string) ([]*types.ImplRecord, error) {
	return listImplsByForPathWithQuerier(ctx, s.db, forPath)
}

func (s *SQLiteStore) UpsertReference(ctx context.Context, r *types.Reference) error {
	return upsertReferenceWithQuerier(ctx, s.db, r)
}
func (s *SQLiteStore) ListReferencesTo(ctx context.Context, targetPath string, limit int) ([]*types.Reference, error) {
	return listReferencesToWithQuerier(ctx, s.db, targetPath, limit)
}
func (s *SQLiteStore) ListReferencesFrom(ctx context.Context, symbolID int64) ([]*types.Reference, error) {
	return listReferencesFromWithQuerier(ctx, s.db, symbolID)
}

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) { return getMetaWithQuerier(ctx, s.db, key) }
func (s *SQLiteStore) SetMeta(ctx context.Context, key, val string) error     { return setMetaWithQuerier(ctx, s.db, key, val) }

// PrepareSide creates a side store at livePath+".tmp" for the
// ingestor to populate during a reindex, per spec §4.2's
// prepare_side. Fails with ErrBusy if the side file is already open
// elsewhere (SQLite's own file locking surfaces this as a busy
// error from Open).
func PrepareSide(ctx context.Context, livePath string) (*SQLiteStore, error) {
	sidePath := SidePath(livePath)
	store, err := Open(ctx, sidePath)
	if err != nil {
		if strings.Contains(err.Error(), "locked") || strings.Contains(err.Error(), "busy") {
			return nil, ErrBusy
		}
		return nil, err
	}
	return store, nil
}

// SidePath returns the side-store path for a given live catalog path.
func SidePath(livePath string) string { return livePath + ".tmp" }

// CommitSide fsyncs and closes the side store, then renames it over
// livePath. A crash between the fsync and the rename leaves the
// previous generation at livePath fully intact, since rename is the
// only operation that can be interrupted without data loss.
func CommitSide(side *SQLiteStore, livePath string) error {
	sidePath := side.Path()
	if err := side.Close(); err != nil {
		return fmt.Errorf("catalog: close side store: %w", err)
	}
	f, err := os.Open(sidePath)
	if err != nil {
		return fmt.Errorf("catalog: reopen side store for fsync: %w", err)
	}
	syncErr := f.Sync()
	closeErr := f.Close()
	if syncErr != nil {
		return fmt.Errorf("catalog: fsync side store: %w", syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("catalog: close side store fd: %w", closeErr)
	}
	if err := os.Rename(sidePath, livePath); err != nil {
		return fmt.Errorf("catalog: commit side store: %w", err)
	}
	return nil
}
