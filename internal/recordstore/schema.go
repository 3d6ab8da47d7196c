package recordstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/indexedsearch/internal/media"
)

// updated is stored as UTC unix nanoseconds so comparisons keep full
// precision on both drivers.
const schema = `
CREATE TABLE IF NOT EXISTS media_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT 'unprocessed',
	actor TEXT,
	updated INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_media_entries_updated ON media_entries(updated);

CREATE TABLE IF NOT EXISTS media_tags (
	media_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	PRIMARY KEY (media_id, position),
	FOREIGN KEY (media_id) REFERENCES media_entries(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS media_comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	media_id INTEGER NOT NULL,
	content TEXT NOT NULL,
	FOREIGN KEY (media_id) REFERENCES media_entries(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_media_comments_media ON media_comments(media_id);
`

// query loads entries matching where (a clause on alias e) with their tags
// and comments.
func (s *Store) query(ctx context.Context, where string, args ...any) ([]*media.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.title, e.description, e.state, e.actor, e.updated FROM media_entries e `+
			where+` ORDER BY e.id`, args...)
	if err != nil {
		return nil, wrap("list media entries", err)
	}
	defer rows.Close()

	var entries []*media.Entry
	byID := make(map[uint64]*media.Entry)
	for rows.Next() {
		var (
			id      int64
			state   string
			actor   sql.NullString
			updated int64
		)
		e := &media.Entry{}
		if err := rows.Scan(&id, &e.Title, &e.Description, &state, &actor, &updated); err != nil {
			return nil, wrap("scan media entry", err)
		}
		e.ID = uint64(id)
		e.State = media.State(state)
		e.Updated = time.Unix(0, updated).UTC()
		if actor.Valid {
			e.Actor = &media.Actor{Username: actor.String}
		}
		entries = append(entries, e)
		byID[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate media entries", err)
	}
	// Release the single connection before the child queries.
	_ = rows.Close()
	if len(entries) == 0 {
		return entries, nil
	}

	if err := s.loadTags(ctx, where, args, byID); err != nil {
		return nil, err
	}
	if err := s.loadComments(ctx, where, args, byID); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) loadTags(ctx context.Context, where string, args []any, byID map[uint64]*media.Entry) error {
	rows, err := s.db.QueryContext(ctx, subselect(
		`SELECT t.media_id, t.name FROM media_tags t`, "t.media_id", where, "t.media_id, t.position"), args...)
	if err != nil {
		return wrap("load tags", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return wrap("scan tag", err)
		}
		if e, ok := byID[uint64(id)]; ok {
			e.Tags = append(e.Tags, media.Tag{Name: name})
		}
	}
	return wrap0("iterate tags", rows.Err())
}

func (s *Store) loadComments(ctx context.Context, where string, args []any, byID map[uint64]*media.Entry) error {
	rows, err := s.db.QueryContext(ctx, subselect(
		`SELECT c.id, c.media_id, c.content FROM media_comments c`, "c.media_id", where, "c.media_id, c.id"), args...)
	if err != nil {
		return wrap("load comments", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, mediaID int64
		var content string
		if err := rows.Scan(&id, &mediaID, &content); err != nil {
			return wrap("scan comment", err)
		}
		if e, ok := byID[uint64(mediaID)]; ok {
			e.Comments = append(e.Comments, media.Comment{ID: uint64(id), MediaID: uint64(mediaID), Content: content})
		}
	}
	return wrap0("iterate comments", rows.Err())
}

// subselect restricts a child-table query to the entries selected by where.
func subselect(base, key, where, order string) string {
	var b strings.Builder
	b.WriteString(base)
	if where != "" {
		fmt.Fprintf(&b, " WHERE %s IN (SELECT e.id FROM media_entries e %s)", key, where)
	}
	fmt.Fprintf(&b, " ORDER BY %s", order)
	return b.String()
}

func wrap0(op string, err error) error {
	if err == nil {
		return nil
	}
	return wrap(op, err)
}
