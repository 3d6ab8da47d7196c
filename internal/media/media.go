// Package media defines the media record model shared by the record store
// and the search index, plus the interfaces the index uses to read records
// and receive change notifications.
package media

import (
	"context"
	"time"
)

// State is the processing state of a media entry.
type State string

const (
	StateUnprocessed State = "unprocessed"
	StateProcessing  State = "processing"
	StateProcessed   State = "processed"
	StateFailed      State = "failed"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateUnprocessed, StateProcessing, StateProcessed, StateFailed:
		return true
	}
	return false
}

// Tag is a single tag attached to an entry.
type Tag struct {
	Name string `json:"name"`
}

// Comment is a comment on an entry.
type Comment struct {
	ID      uint64 `json:"id"`
	MediaID uint64 `json:"media_id"`
	Content string `json:"content"`
}

// Actor is the user that owns an entry.
type Actor struct {
	Username string `json:"username"`
}

// Entry is one media record.
type Entry struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []Tag     `json:"tags,omitempty"`
	Comments    []Comment `json:"comments,omitempty"`
	Updated     time.Time `json:"updated"`
	State       State     `json:"state"`
	Actor       *Actor    `json:"actor,omitempty"`
}

// Processed reports whether the entry may be indexed.
func (e *Entry) Processed() bool {
	return e.State == StateProcessed
}

// Source reads records from the system of record.
type Source interface {
	// FindByID returns the entry with id, or (nil, nil) when it does not exist.
	FindByID(ctx context.Context, id uint64) (*Entry, error)

	// ListAll returns every entry.
	ListAll(ctx context.Context) ([]*Entry, error)
}

// Observer receives mutation notifications after the record store commits.
type Observer interface {
	OnInsert(ctx context.Context, e *Entry) error
	OnUpdate(ctx context.Context, e *Entry) error
	OnDelete(ctx context.Context, id uint64) error
	OnCommentChange(ctx context.Context, c *Comment) error
}

// Notifier delivers mutation notifications to registered observers.
type Notifier interface {
	// Subscribe registers o and returns a function that removes it.
	Subscribe(o Observer) (unsubscribe func())
}
