package index

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/media"
	"github.com/Aman-CERP/indexedsearch/internal/metrics"
	"github.com/Aman-CERP/indexedsearch/internal/store"
)

// Event kinds, used in logs and metrics.
const (
	KindInsert  = "insert"
	KindUpdate  = "update"
	KindDelete  = "delete"
	KindComment = "comment"
)

// Listener applies record-store notifications to the index. Each call is
// its own single-document commit.
type Listener struct {
	index  store.SearchIndex
	source media.Source
	opts   Options
	logger *slog.Logger
}

var _ media.Observer = (*Listener)(nil)

// NewListener creates a listener. source resolves comment owners.
func NewListener(idx store.SearchIndex, source media.Source, opts Options) *Listener {
	return &Listener{
		index:  idx,
		source: source,
		opts:   opts,
		logger: opts.logger(),
	}
}

// OnInsert indexes a new entry. Unprocessed entries are ignored.
func (l *Listener) OnInsert(ctx context.Context, e *media.Entry) error {
	return l.record(KindInsert, l.upsert(ctx, e, false))
}

// OnUpdate re-indexes an entry. An entry that is no longer processed is
// left in the index unless PruneUnprocessed is set.
func (l *Listener) OnUpdate(ctx context.Context, e *media.Entry) error {
	return l.record(KindUpdate, l.upsert(ctx, e, l.opts.PruneUnprocessed))
}

// OnDelete removes the entry's document. Unknown ids are a no-op.
func (l *Listener) OnDelete(ctx context.Context, id uint64) error {
	l.logger.Debug("index_remove", slog.Uint64("media_id", id))
	err := l.retry(ctx, func() error { return l.index.Remove(ctx, id, nil) })
	return l.record(KindDelete, err)
}

// OnCommentChange re-indexes the entry that owns c.
func (l *Listener) OnCommentChange(ctx context.Context, c *media.Comment) error {
	e, err := l.source.FindByID(ctx, c.MediaID)
	if err != nil {
		return l.record(KindComment, errors.New(errors.ErrCodeRecordStore, "failed to load comment owner", err))
	}
	if e == nil {
		l.logger.Debug("comment_owner_missing",
			slog.Uint64("comment_id", c.ID),
			slog.Uint64("media_id", c.MediaID))
		return l.record(KindComment, nil)
	}
	return l.record(KindComment, l.upsert(ctx, e, l.opts.PruneUnprocessed))
}

func (l *Listener) upsert(ctx context.Context, e *media.Entry, prune bool) error {
	doc, err := Project(e)
	if stderrors.Is(err, errors.ErrNotProcessed) {
		if !prune {
			l.logger.Debug("index_skip_unprocessed",
				slog.Uint64("media_id", e.ID),
				slog.String("state", string(e.State)))
			return nil
		}
		l.logger.Debug("index_prune_unprocessed", slog.Uint64("media_id", e.ID))
		return l.retry(ctx, func() error { return l.index.Remove(ctx, e.ID, nil) })
	}
	if err != nil {
		return err
	}

	l.logger.Debug("index_upsert", slog.Uint64("media_id", e.ID))
	return l.retry(ctx, func() error { return l.index.Upsert(ctx, doc, nil) })
}

func (l *Listener) retry(ctx context.Context, fn func() error) error {
	if l.opts.Retry.MaxRetries == 0 {
		return fn()
	}
	return errors.Retry(ctx, l.opts.Retry, fn)
}

func (l *Listener) record(kind string, err error) error {
	status := "ok"
	if err != nil {
		status = "error"
		attrs := append([]slog.Attr{slog.String("kind", kind)}, errors.LogAttrs(err)...)
		l.logger.LogAttrs(context.Background(), slog.LevelError, "index_event_failed", attrs...)
	}
	metrics.EventsTotal.WithLabelValues(kind, status).Inc()
	return err
}
