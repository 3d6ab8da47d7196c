package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/indexedsearch/internal/errors"
)

// SQLiteIndex implements SearchIndex using SQLite FTS5. The FTS rowid is
// the media id. Several processes may share one file; the commit counter
// in index_meta is what lets each of them see the others' commits.
type SQLiteIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	gate   *writerGate
	gen    atomic.Uint64 // highest commit counter seen
	closed bool
	logger *slog.Logger
}

var _ SearchIndex = (*SQLiteIndex)(nil)

// maxSQLiteConns bounds the pool for file-backed indexes.
const maxSQLiteConns = 4

// SQLitePath returns where the SQLite engine keeps its index inside dir.
func SQLitePath(dir string) string {
	return filepath.Join(dir, IndexName+".db")
}

// validateSQLiteIntegrity checks an existing database file before opening.
func validateSQLiteIntegrity(path string) error {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// isSQLiteUnavailable reports errors that mean the database is unusable
// rather than the statement being wrong.
func isSQLiteUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "unable to open database")
}

// openSQLite opens the index in dir, creating it when absent. An empty dir
// yields an in-memory index.
func openSQLite(dir string, opts Options) (*SQLiteIndex, bool, error) {
	logger := opts.logger()

	var path, dsn string
	exists := false
	if dir == "" {
		dsn = ":memory:"
	} else {
		path = SQLitePath(dir)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			exists = true
		}

		if exists && opts.RecoverCorrupt {
			if validErr := validateSQLiteIntegrity(path); validErr != nil {
				logger.Warn("index_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					return nil, false, errors.Unavailable("index corrupted and cannot be removed", err).WithDetail("path", path)
				}
				_ = os.Remove(path + "-wal")
				_ = os.Remove(path + "-shm")
				logger.Info("index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, rebuilding"))
				exists = false
			}
		}
		// _pragma values are applied to every pooled connection.
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)" +
			"&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, false, errors.Unavailable("failed to open database", err).WithDetail("path", path)
	}

	// An in-memory database lives on a single connection. A file in WAL
	// mode serves readers from their own snapshots next to the writer.
	if path == "" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(maxSQLiteConns)
		db.SetMaxIdleConns(maxSQLiteConns)
	}
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, false, errors.Unavailable("failed to set pragma", err).WithDetail("pragma", pragma)
		}
	}

	idx := &SQLiteIndex{
		db:     db,
		path:   path,
		gate:   newWriterGate(dir, opts.WriterTimeout),
		logger: logger,
	}

	created, err := idx.prepare(exists)
	if err != nil {
		_ = db.Close()
		return nil, false, err
	}
	if created && path != "" {
		logger.Info("index_created", slog.String("path", path))
	}
	return idx, created, nil
}

// prepare creates the schema in a new database or verifies an existing one.
func (s *SQLiteIndex) prepare(exists bool) (bool, error) {
	if exists {
		var tables int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = ?`, IndexName).Scan(&tables)
		if err != nil {
			return false, errors.Unavailable("cannot query schema", err)
		}
		if tables > 0 {
			return false, s.checkSchema()
		}
	}
	if err := s.initSchema(); err != nil {
		return false, errors.New(errors.ErrCodeIndexCreate, "failed to initialize schema", err)
	}
	return true, nil
}

func (s *SQLiteIndex) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS index_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(
		title,
		description,
		tag,
		comment,
		user,
		time UNINDEXED,
		tokenize='unicode61'
	);

	INSERT OR IGNORE INTO index_meta (key, value) VALUES ('schema_version', '%d');
	`, IndexName, SchemaVersion)

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteIndex) checkSchema() error {
	var v string
	err := s.db.QueryRow(`SELECT value FROM index_meta WHERE key = 'schema_version'`).Scan(&v)
	if err != nil {
		return errors.Unavailable("index schema version missing", err).WithDetail("path", s.path)
	}
	if v != strconv.Itoa(SchemaVersion) {
		return errors.Unavailable("index schema is not usable",
			errors.New(errors.ErrCodeSchemaMismatch,
				fmt.Sprintf("index schema version %q, expected %d", v, SchemaVersion), nil)).
			WithDetail("path", s.path)
	}
	return nil
}

func (s *SQLiteIndex) NewWriter(ctx context.Context) (Writer, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, errors.ErrIndexClosed
	}
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	return newStagedWriter(s.gate, s.apply, func() { s.Generation() }), nil
}

// apply executes staged operations in order inside one transaction.
// FTS5 has no REPLACE, so an upsert deletes the rowid first.
func (s *SQLiteIndex) apply(ctx context.Context, ops []op) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrIndexClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrapDBError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM `+IndexName+` WHERE rowid = ?`)
	if err != nil {
		return s.wrapDBError("failed to prepare delete statement", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `INSERT INTO `+IndexName+
		`(rowid, title, description, tag, comment, user, time) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return s.wrapDBError("failed to prepare insert statement", err)
	}
	defer insertStmt.Close()

	for _, o := range ops {
		if o.id > math.MaxInt64 {
			return errors.ValidationError(fmt.Sprintf("media id %d exceeds index range", o.id), nil)
		}
		rowid := int64(o.id)
		if _, err := deleteStmt.ExecContext(ctx, rowid); err != nil {
			return fmt.Errorf("failed to delete document %d: %w", o.id, err)
		}
		if o.doc == nil {
			continue
		}
		d := o.doc
		if _, err := insertStmt.ExecContext(ctx, rowid, d.Title, d.Description, d.Tag, d.Comment, d.User, formatTime(d.Time)); err != nil {
			return fmt.Errorf("failed to index document %d: %w", o.id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES ('commits', '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(value AS INTEGER) + 1`); err != nil {
		return s.wrapDBError("failed to bump commit counter", err)
	}

	return tx.Commit()
}

func (s *SQLiteIndex) wrapDBError(msg string, err error) error {
	if isSQLiteUnavailable(err) {
		return errors.Unavailable(msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (s *SQLiteIndex) Upsert(ctx context.Context, doc *Document, w Writer) error {
	return withWriter(ctx, s, w, func(w Writer) error { return w.Upsert(doc) })
}

func (s *SQLiteIndex) Remove(ctx context.Context, id uint64, w Writer) error {
	return withWriter(ctx, s, w, func(w Writer) error { return w.Remove(id) })
}

// StoredFields reads every (id, time) pair with one SELECT, which SQLite
// serves from a single read snapshot.
func (s *SQLiteIndex) StoredFields(ctx context.Context) ([]StoredFields, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.ErrIndexClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT rowid, time FROM `+IndexName)
	if err != nil {
		return nil, s.wrapDBError("failed to enumerate stored fields", err)
	}
	defer rows.Close()

	out := []StoredFields{}
	for rows.Next() {
		var rowid int64
		var raw string
		if err := rows.Scan(&rowid, &raw); err != nil {
			return nil, errors.New(errors.ErrCodeIndexRead, "failed to read stored fields", err)
		}
		sf := StoredFields{ID: uint64(rowid)}
		if t, err := parseTime(raw); err == nil {
			sf.Time = t
		}
		out = append(out, sf)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeIndexRead, "failed to read stored fields", err)
	}
	return out, nil
}

func (s *SQLiteIndex) Search(ctx context.Context, queryStr string, fields []string, limit int) ([]uint64, error) {
	fields, err := resolveFields(fields)
	if err != nil {
		return nil, err
	}
	q, err := ParseQuery(queryStr)
	if err != nil {
		return nil, err
	}
	if q.Empty() {
		return []uint64{}, nil
	}
	match := fts5Query(q.Root, fields)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.ErrIndexClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rowid FROM `+IndexName+` WHERE `+IndexName+` MATCH ? ORDER BY rank LIMIT ?`,
		match, searchLimit(limit))
	if err != nil {
		if strings.Contains(err.Error(), "fts5: syntax error") {
			return nil, errors.New(errors.ErrCodeInvalidQuery, "query could not be parsed", err)
		}
		return nil, errors.New(errors.ErrCodeSearchFailed, "search failed", err)
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var rowid int64
		if err := rows.Scan(&rowid); err != nil {
			return nil, errors.New(errors.ErrCodeSearchFailed, "failed to read search result", err)
		}
		ids = append(ids, uint64(rowid))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "search failed", err)
	}
	return ids, nil
}

// fts5Query renders a parsed query as an FTS5 MATCH expression. Every term
// carries its own column filter, so nesting never relies on FTS5 precedence.
func fts5Query(n Node, fields []string) string {
	switch n := n.(type) {
	case *Term:
		var sb strings.Builder
		sb.WriteString("{")
		sb.WriteString(strings.Join(searchFields(n, fields), " "))
		sb.WriteString("} : ")
		sb.WriteString(`"` + strings.ReplaceAll(n.Text, `"`, `""`) + `"`)
		if n.Prefix {
			sb.WriteString(" *")
		}
		return sb.String()
	case *And:
		must := make([]string, len(n.Must))
		for i, c := range n.Must {
			must[i] = fts5Query(c, fields)
		}
		out := "(" + strings.Join(must, " AND ") + ")"
		if len(n.MustNot) == 0 {
			return out
		}
		not := make([]string, len(n.MustNot))
		for i, c := range n.MustNot {
			not[i] = fts5Query(c, fields)
		}
		return "(" + out + " NOT (" + strings.Join(not, " OR ") + "))"
	case *Or:
		alts := make([]string, len(n.Any))
		for i, c := range n.Any {
			alts[i] = fts5Query(c, fields)
		}
		return "(" + strings.Join(alts, " OR ") + ")"
	}
	return ""
}

func (s *SQLiteIndex) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errors.ErrIndexClosed
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+IndexName).Scan(&n); err != nil {
		return 0, s.wrapDBError("failed to count documents", err)
	}
	return uint64(n), nil
}

// Generation returns the commit counter stored in the index, so commits
// from other processes sharing the file count too. The last value seen is
// returned when the counter cannot be read.
func (s *SQLiteIndex) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return s.gen.Load()
	}
	var n int64
	err := s.db.QueryRow(`SELECT value FROM index_meta WHERE key = 'commits'`).Scan(&n)
	if err != nil || n <= 0 {
		return s.gen.Load()
	}
	seen := uint64(n)
	for {
		cur := s.gen.Load()
		if seen <= cur || s.gen.CompareAndSwap(cur, seen) {
			return s.gen.Load()
		}
	}
}

func (s *SQLiteIndex) Backend() Backend { return BackendSQLite }

func (s *SQLiteIndex) Path() string { return s.path }

// Close closes the database. Closing twice is a no-op.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
