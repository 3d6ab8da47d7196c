package index

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/media"
	"github.com/Aman-CERP/indexedsearch/internal/metrics"
)

// Default queue sizing.
const (
	DefaultQueueWorkers = 4
	DefaultQueueSize    = 256
)

type event struct {
	kind    string
	ctx     context.Context
	entry   *media.Entry
	id      uint64
	comment *media.Comment
}

// Queue is an Observer that hands events to a pool of workers. Events are
// partitioned by media id, so all events for one entry are applied in the
// order they were enqueued. Enqueueing blocks while the partition is full.
type Queue struct {
	target media.Observer
	parts  []chan event
	group  *errgroup.Group
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	depth  atomic.Int64
}

var _ media.Observer = (*Queue)(nil)

// NewQueue starts workers that deliver events to target.
func NewQueue(target media.Observer, workers, size int, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = DefaultQueueWorkers
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		target: target,
		parts:  make([]chan event, workers),
		group:  &errgroup.Group{},
		logger: logger,
	}
	for i := range q.parts {
		ch := make(chan event, size)
		q.parts[i] = ch
		q.group.Go(func() error {
			q.work(ch)
			return nil
		})
	}
	return q
}

func (q *Queue) work(ch <-chan event) {
	for ev := range ch {
		q.depth.Add(-1)
		metrics.EventQueueDepth.Dec()

		var err error
		switch ev.kind {
		case KindInsert:
			err = q.target.OnInsert(ev.ctx, ev.entry)
		case KindUpdate:
			err = q.target.OnUpdate(ev.ctx, ev.entry)
		case KindDelete:
			err = q.target.OnDelete(ev.ctx, ev.id)
		case KindComment:
			err = q.target.OnCommentChange(ev.ctx, ev.comment)
		}
		if err != nil {
			q.logger.Warn("queued_event_failed",
				slog.String("kind", ev.kind),
				slog.Uint64("media_id", ev.id),
				slog.String("error", err.Error()))
		}
	}
}

func (q *Queue) push(ctx context.Context, ev event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errors.ErrQueueClosed
	}

	// Delivery outlives the caller's request.
	ev.ctx = context.WithoutCancel(ctx)
	ch := q.parts[ev.id%uint64(len(q.parts))]

	q.depth.Add(1)
	metrics.EventQueueDepth.Inc()
	select {
	case ch <- ev:
		return nil
	case <-ctx.Done():
		q.depth.Add(-1)
		metrics.EventQueueDepth.Dec()
		return ctx.Err()
	}
}

func (q *Queue) OnInsert(ctx context.Context, e *media.Entry) error {
	return q.push(ctx, event{kind: KindInsert, entry: e, id: e.ID})
}

func (q *Queue) OnUpdate(ctx context.Context, e *media.Entry) error {
	return q.push(ctx, event{kind: KindUpdate, entry: e, id: e.ID})
}

func (q *Queue) OnDelete(ctx context.Context, id uint64) error {
	return q.push(ctx, event{kind: KindDelete, id: id})
}

func (q *Queue) OnCommentChange(ctx context.Context, c *media.Comment) error {
	return q.push(ctx, event{kind: KindComment, comment: c, id: c.MediaID})
}

// Len returns the number of events waiting for a worker.
func (q *Queue) Len() int {
	return int(q.depth.Load())
}

// Close stops accepting events and waits until every queued event has been
// delivered.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, ch := range q.parts {
		close(ch)
	}
	q.mu.Unlock()
	return q.group.Wait()
}
