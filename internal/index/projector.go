// Package index keeps the search index in step with the media record store:
// projection of entries into documents, full reconciliation, and per-event
// updates.
package index

import (
	"strings"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/media"
	"github.com/Aman-CERP/indexedsearch/internal/store"
)

// Project builds the indexed document for e. Entries that are not processed
// yield an error matching errors.ErrNotProcessed.
func Project(e *media.Entry) (*store.Document, error) {
	if e == nil {
		return nil, errors.ValidationError("nil media entry", nil)
	}
	if !e.Processed() {
		return nil, errors.NotProcessed(e.ID, string(e.State))
	}

	tags := make([]string, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = t.Name
	}
	comments := make([]string, len(e.Comments))
	for i, c := range e.Comments {
		comments[i] = c.Content
	}

	doc := &store.Document{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Tag:         strings.Join(tags, " "),
		Comment:     strings.Join(comments, "\n"),
		Time:        e.Updated.UTC(),
	}
	if e.Actor != nil {
		doc.User = e.Actor.Username
	}
	return doc, nil
}
