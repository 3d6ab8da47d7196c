package store

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
)

// Backend names a full-text engine.
type Backend string

const (
	// BackendBleve uses Bleve v2 (scorch). BoltDB locks the index to a
	// single process.
	BackendBleve Backend = "bleve"

	// BackendSQLite uses SQLite FTS5 in WAL mode; readers in other
	// processes can open the index concurrently.
	BackendSQLite Backend = "sqlite"
)

// DefaultSearchLimit caps results when a caller passes no limit.
const DefaultSearchLimit = 100

// DefaultWriterTimeout bounds how long NewWriter waits for the write slot.
const DefaultWriterTimeout = 30 * time.Second

// Options configures OpenOrCreate.
type Options struct {
	Backend Backend

	// WriterTimeout bounds waits for the write slot. Zero waits until the
	// caller's context ends.
	WriterTimeout time.Duration

	// RecoverCorrupt removes and recreates an index that fails integrity
	// checks instead of failing the open.
	RecoverCorrupt bool

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// ParseBackend validates a backend name. Empty selects Bleve.
func ParseBackend(name string) (Backend, error) {
	switch Backend(name) {
	case BackendBleve, "":
		return BackendBleve, nil
	case BackendSQLite:
		return BackendSQLite, nil
	default:
		return "", errors.ConfigError(fmt.Sprintf("unknown index backend: %s (valid options: bleve, sqlite)", name), nil)
	}
}

// OpenOrCreate opens the media_entries index in dir, creating the
// directory and the index when either is missing. created reports a cold
// start. An empty dir opens an in-memory index. Open failures match
// errors.ErrIndexUnavailable.
func OpenOrCreate(dir string, opts Options) (idx SearchIndex, created bool, err error) {
	backend, err := ParseBackend(string(opts.Backend))
	if err != nil {
		return nil, false, err
	}

	dirCreated := false
	if dir != "" {
		if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
			opts.logger().Info("index_dir_not_found", slog.String("dir", dir))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, false, errors.Unavailable(fmt.Sprintf("failed to create index directory %s", dir), err)
			}
			dirCreated = true
		}
	}

	switch backend {
	case BackendSQLite:
		idx, created, err = openSQLite(dir, opts)
	default:
		idx, created, err = openBleve(dir, opts)
	}
	if err != nil {
		return nil, false, err
	}

	opts.logger().Info("index_opened",
		slog.String("backend", string(backend)),
		slog.String("path", idx.Path()),
		slog.Bool("created", created || dirCreated))
	return idx, created || dirCreated, nil
}

// Detect reports which engine owns an existing index in dir, or "" when
// dir holds none.
func Detect(dir string) Backend {
	if info, err := os.Stat(SQLitePath(dir)); err == nil && !info.IsDir() {
		return BackendSQLite
	}
	if info, err := os.Stat(BlevePath(dir)); err == nil && info.IsDir() {
		return BackendBleve
	}
	return ""
}

func resolveFields(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return DefaultSearchFields, nil
	}
	for _, f := range fields {
		if !IsSearchField(f) {
			return nil, errors.ValidationError(fmt.Sprintf("unknown search field: %s", f), nil)
		}
	}
	return fields, nil
}

func searchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return limit
}
