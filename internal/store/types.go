// Package store provides the full-text index for media entries.
//
// Two engines implement SearchIndex: Bleve v2 (scorch) and SQLite FTS5.
// Both share one query grammar, one single-writer discipline and one
// on-disk naming scheme under the index directory.
package store

import (
	"context"
	"time"
)

// IndexName is the logical name of the index inside its directory.
const IndexName = "media_entries"

// SchemaVersion is recorded inside every index. Opening an index with a
// different version fails; there is no migration path.
const SchemaVersion = 1

// Schema field names.
const (
	FieldMediaID     = "media_id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldTag         = "tag"
	FieldComment     = "comment"
	FieldUser        = "user"
	FieldTime        = "time"
)

// DefaultSearchFields are searched when a query term names no field.
var DefaultSearchFields = []string{FieldTitle, FieldDescription, FieldTag, FieldComment}

// textFields are the fields a query may address with "field:".
var textFields = map[string]bool{
	FieldTitle:       true,
	FieldDescription: true,
	FieldTag:         true,
	FieldComment:     true,
	FieldUser:        true,
}

// IsSearchField reports whether name is a searchable schema field.
func IsSearchField(name string) bool {
	return textFields[name]
}

// Document is the searchable projection of one media entry.
type Document struct {
	ID          uint64
	Title       string
	Description string
	Tag         string
	Comment     string
	User        string
	// Time is the entry's updated time when the document was built.
	Time time.Time
}

// StoredFields is what the index returns for each document during enumeration.
type StoredFields struct {
	ID   uint64
	Time time.Time
}

// Writer stages mutations that become visible together on Commit.
// A Writer holds the index's single write slot until Commit or Discard.
type Writer interface {
	Upsert(doc *Document) error
	Remove(id uint64) error
	// Len is the number of staged operations.
	Len() int
	Commit(ctx context.Context) error
	// Discard drops staged operations and releases the write slot.
	// Safe to call after Commit.
	Discard()
}

// SearchIndex is the persistent full-text index.
type SearchIndex interface {
	// NewWriter acquires the write slot, blocking up to the configured
	// writer timeout.
	NewWriter(ctx context.Context) (Writer, error)

	// Upsert replaces the document with doc.ID. With a nil writer the
	// change is committed before returning; otherwise it is staged on w.
	Upsert(ctx context.Context, doc *Document, w Writer) error

	// Remove deletes the document with id. Missing ids are a no-op.
	Remove(ctx context.Context, id uint64, w Writer) error

	// StoredFields enumerates every document from one reader snapshot.
	StoredFields(ctx context.Context) ([]StoredFields, error)

	// Search parses query and returns matching ids in relevance order.
	Search(ctx context.Context, query string, fields []string, limit int) ([]uint64, error)

	// Count returns the number of documents.
	Count(ctx context.Context) (uint64, error)

	// Generation increases on every successful commit. Engines that can be
	// shared between processes count commits from all of them.
	Generation() uint64

	Backend() Backend
	Path() string
	Close() error
}

// Stats summarises an index for status output.
type Stats struct {
	Backend    Backend `json:"backend"`
	Path       string  `json:"path"`
	Documents  uint64  `json:"documents"`
	Generation uint64  `json:"generation"`
}

// GetStats collects Stats from idx.
func GetStats(ctx context.Context, idx SearchIndex) (*Stats, error) {
	n, err := idx.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Backend:    idx.Backend(),
		Path:       idx.Path(),
		Documents:  n,
		Generation: idx.Generation(),
	}, nil
}
