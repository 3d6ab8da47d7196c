// Package recordstore is the SQLite system of record for media entries.
// It implements media.Source and media.Notifier: observers are told about
// every insert, update, delete and comment change after it commits.
package recordstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // Pure Go SQLite driver, registered as "sqlite"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/media"
)

// Driver names a database/sql driver for the record store.
type Driver string

const (
	// DriverSQLite is modernc.org/sqlite (pure Go, the default).
	DriverSQLite Driver = "sqlite"
	// DriverSQLite3 is github.com/mattn/go-sqlite3 (requires CGO).
	DriverSQLite3 Driver = "sqlite3"
)

// ParseDriver validates a driver name. Empty selects DriverSQLite.
func ParseDriver(name string) (Driver, error) {
	switch Driver(name) {
	case DriverSQLite, "":
		return DriverSQLite, nil
	case DriverSQLite3:
		return DriverSQLite3, nil
	default:
		return "", errors.ConfigError(fmt.Sprintf("unknown record store driver: %s (valid options: sqlite, sqlite3)", name), nil)
	}
}

// Options configures Open.
type Options struct {
	Driver Driver
	Logger *slog.Logger
	// Now stamps mutations. Defaults to time.Now.
	Now func() time.Time
}

// Store is a media.Source backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	driver Driver
	logger *slog.Logger
	now    func() time.Time

	obsMu     sync.RWMutex
	observers map[int]media.Observer
	order     []int
	nextObs   int

	// last is the most recent stamp handed out, so updates stay strictly
	// increasing even when the clock does not move between calls.
	stampMu sync.Mutex
	last    time.Time
}

var (
	_ media.Source   = (*Store)(nil)
	_ media.Notifier = (*Store)(nil)
)

// Open opens or creates the record store at path. An empty path opens an
// in-memory database.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	driver, err := ParseDriver(string(opts.Driver))
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.New(errors.ErrCodeRecordStore, "failed to create record store directory", err).
				WithDetail("path", path)
		}
		dsn = path
	}

	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, errors.New(errors.ErrCodeRecordStore, "failed to open record store", err).WithDetail("path", path)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:        db,
		path:      path,
		driver:    driver,
		logger:    logger,
		now:       now,
		observers: make(map[int]media.Observer),
	}
	if err := s.initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("record_store_opened",
		slog.String("driver", string(driver)),
		slog.String("path", path))
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if s.path != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return errors.New(errors.ErrCodeRecordStore, "failed to set pragma", err).WithDetail("pragma", p)
		}
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.New(errors.ErrCodeRecordStore, "failed to initialize schema", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file, empty for an in-memory store.
func (s *Store) Path() string { return s.path }

// stamp returns a UTC modification time later than every previous one.
func (s *Store) stamp() time.Time {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

// Insert stores a new entry and notifies observers. A zero e.ID lets the
// database assign one; e.ID and e.Updated are set on return. A non-nil
// error with code ERR_506_EVENT_DISPATCH means the entry was stored but an
// observer failed.
func (s *Store) Insert(ctx context.Context, e *media.Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	e.Updated = s.stamp()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var res sql.Result
		var err error
		if e.ID == 0 {
			res, err = tx.ExecContext(ctx,
				`INSERT INTO media_entries (title, description, state, actor, updated) VALUES (?, ?, ?, ?, ?)`,
				e.Title, e.Description, string(e.State), actorName(e), e.Updated.UnixNano())
		} else {
			if e.ID > math.MaxInt64 {
				return errors.ValidationError(fmt.Sprintf("media id %d out of range", e.ID), nil)
			}
			res, err = tx.ExecContext(ctx,
				`INSERT INTO media_entries (id, title, description, state, actor, updated) VALUES (?, ?, ?, ?, ?, ?)`,
				int64(e.ID), e.Title, e.Description, string(e.State), actorName(e), e.Updated.UnixNano())
		}
		if err != nil {
			return fmt.Errorf("insert media entry: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read inserted id: %w", err)
		}
		e.ID = uint64(id)
		return writeTags(ctx, tx, e)
	})
	if err != nil {
		return wrap("insert", err)
	}

	// Observers see what was stored. Comments are not written by Insert.
	current, err := s.FindByID(ctx, e.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return notFound(e.ID)
	}
	e.Comments = current.Comments

	s.logger.Debug("media_inserted", slog.Uint64("media_id", e.ID))
	return s.dispatch(ctx, func(o media.Observer) error { return o.OnInsert(ctx, current) })
}

// Update replaces an entry's fields and tags, stamps a new modification
// time and notifies observers. Comments are left as they are.
func (s *Store) Update(ctx context.Context, e *media.Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	updated := s.stamp()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE media_entries SET title = ?, description = ?, state = ?, actor = ?, updated = ? WHERE id = ?`,
			e.Title, e.Description, string(e.State), actorName(e), updated.UnixNano(), int64(e.ID))
		if err != nil {
			return fmt.Errorf("update media entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(e.ID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM media_tags WHERE media_id = ?`, int64(e.ID)); err != nil {
			return fmt.Errorf("clear tags: %w", err)
		}
		return writeTags(ctx, tx, e)
	})
	if err != nil {
		return wrap("update", err)
	}
	e.Updated = updated

	// Observers see the stored comments, not whatever the caller passed.
	current, err := s.FindByID(ctx, e.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return notFound(e.ID)
	}
	e.Comments = current.Comments

	s.logger.Debug("media_updated", slog.Uint64("media_id", e.ID))
	return s.dispatch(ctx, func(o media.Observer) error { return o.OnUpdate(ctx, current) })
}

// Delete removes an entry with its tags and comments and notifies
// observers.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM media_entries WHERE id = ?`, int64(id))
		if err != nil {
			return fmt.Errorf("delete media entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(id)
		}
		return nil
	})
	if err != nil {
		return wrap("delete", err)
	}

	s.logger.Debug("media_deleted", slog.Uint64("media_id", id))
	return s.dispatch(ctx, func(o media.Observer) error { return o.OnDelete(ctx, id) })
}

// AddComment appends a comment to an entry, stamps the entry with a new
// modification time and notifies observers.
func (s *Store) AddComment(ctx context.Context, mediaID uint64, content string) (*media.Comment, error) {
	if mediaID > math.MaxInt64 {
		return nil, notFound(mediaID)
	}
	c := &media.Comment{MediaID: mediaID, Content: content}
	updated := s.stamp()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := touch(ctx, tx, mediaID, updated); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO media_comments (media_id, content) VALUES (?, ?)`, int64(mediaID), content)
		if err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read comment id: %w", err)
		}
		c.ID = uint64(id)
		return nil
	})
	if err != nil {
		return nil, wrap("add comment", err)
	}

	s.logger.Debug("comment_added", slog.Uint64("comment_id", c.ID), slog.Uint64("media_id", mediaID))
	return c, s.dispatch(ctx, func(o media.Observer) error { return o.OnCommentChange(ctx, c) })
}

// DeleteComment removes a comment, stamps its entry with a new
// modification time and notifies observers with the removed comment.
func (s *Store) DeleteComment(ctx context.Context, commentID uint64) error {
	if commentID > math.MaxInt64 {
		return errors.New(errors.ErrCodeMediaNotFound, fmt.Sprintf("comment %d not found", commentID), nil)
	}
	c := &media.Comment{ID: commentID}
	updated := s.stamp()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var mediaID int64
		err := tx.QueryRowContext(ctx,
			`SELECT media_id, content FROM media_comments WHERE id = ?`, int64(commentID)).Scan(&mediaID, &c.Content)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.New(errors.ErrCodeMediaNotFound, fmt.Sprintf("comment %d not found", commentID), nil)
		}
		if err != nil {
			return fmt.Errorf("look up comment: %w", err)
		}
		c.MediaID = uint64(mediaID)
		if _, err := tx.ExecContext(ctx, `DELETE FROM media_comments WHERE id = ?`, int64(commentID)); err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		return touch(ctx, tx, c.MediaID, updated)
	})
	if err != nil {
		return wrap("delete comment", err)
	}

	s.logger.Debug("comment_deleted", slog.Uint64("comment_id", commentID), slog.Uint64("media_id", c.MediaID))
	return s.dispatch(ctx, func(o media.Observer) error { return o.OnCommentChange(ctx, c) })
}

// touch moves an entry's modification time forward so the index sees the
// owning document as stale after a comment change.
func touch(ctx context.Context, tx *sql.Tx, mediaID uint64, updated time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE media_entries SET updated = ? WHERE id = ?`, updated.UnixNano(), int64(mediaID))
	if err != nil {
		return fmt.Errorf("stamp media entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(mediaID)
	}
	return nil
}

// FindByID returns the entry with id, or nil when there is none.
func (s *Store) FindByID(ctx context.Context, id uint64) (*media.Entry, error) {
	if id > math.MaxInt64 {
		return nil, nil
	}
	entries, err := s.query(ctx, `WHERE e.id = ?`, int64(id))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// ListAll returns every entry ordered by id.
func (s *Store) ListAll(ctx context.Context) ([]*media.Entry, error) {
	return s.query(ctx, "")
}

// Count returns the number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_entries`).Scan(&n); err != nil {
		return 0, wrap("count", err)
	}
	return n, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func validate(e *media.Entry) error {
	if e == nil {
		return errors.ValidationError("nil media entry", nil)
	}
	if e.State == "" {
		e.State = media.StateUnprocessed
	}
	if !e.State.Valid() {
		return errors.ValidationError(fmt.Sprintf("invalid processing state: %q", e.State), nil)
	}
	return nil
}

func actorName(e *media.Entry) sql.NullString {
	if e.Actor == nil || e.Actor.Username == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: e.Actor.Username, Valid: true}
}

func writeTags(ctx context.Context, tx *sql.Tx, e *media.Entry) error {
	for i, t := range e.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO media_tags (media_id, position, name) VALUES (?, ?, ?)`,
			int64(e.ID), i, t.Name); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return nil
}

func notFound(id uint64) error {
	return errors.New(errors.ErrCodeMediaNotFound, fmt.Sprintf("media %d not found", id), nil)
}

// wrap leaves structured errors alone and tags the rest as record store
// failures.
func wrap(op string, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	return errors.New(errors.ErrCodeRecordStore, op+" failed", err)
}
