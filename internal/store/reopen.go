package store

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
)

// Opener opens or creates an index.
type Opener func() (SearchIndex, bool, error)

// Reopening is a SearchIndex that replaces its underlying index after an
// operation reports it unavailable. The next call closes the broken index
// and runs the opener again; if that fails the caller sees the open error
// and the following call retries.
type Reopening struct {
	mu      sync.Mutex
	open    Opener
	idx     SearchIndex
	broken  bool
	closed  bool
	genBase uint64
	backend Backend
	path    string
	logger  *slog.Logger
}

var _ SearchIndex = (*Reopening)(nil)

// NewReopening performs the first open. An error here is a startup failure.
func NewReopening(open Opener, logger *slog.Logger) (*Reopening, bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx, created, err := open()
	if err != nil {
		return nil, false, err
	}
	return &Reopening{
		open:    open,
		idx:     idx,
		backend: idx.Backend(),
		path:    idx.Path(),
		logger:  logger,
	}, created, nil
}

func (r *Reopening) current() (SearchIndex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.ErrIndexClosed
	}
	if !r.broken {
		return r.idx, nil
	}

	if r.idx != nil {
		r.genBase += r.idx.Generation() + 1
		_ = r.idx.Close()
		r.idx = nil
	}
	idx, created, err := r.open()
	if err != nil {
		r.logger.Error("index_reopen_failed", slog.String("error", err.Error()))
		return nil, err
	}
	r.logger.Warn("index_reopened", slog.String("path", idx.Path()), slog.Bool("created", created))
	r.idx = idx
	r.broken = false
	r.backend = idx.Backend()
	r.path = idx.Path()
	return idx, nil
}

// observe marks the index broken when err says it is unusable.
func (r *Reopening) observe(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, errors.ErrIndexUnavailable) {
		r.mu.Lock()
		if !r.closed {
			r.broken = true
		}
		r.mu.Unlock()
	}
	return err
}

func (r *Reopening) NewWriter(ctx context.Context) (Writer, error) {
	idx, err := r.current()
	if err != nil {
		return nil, err
	}
	w, err := idx.NewWriter(ctx)
	if err != nil {
		return nil, r.observe(err)
	}
	return &observedWriter{Writer: w, r: r}, nil
}

type observedWriter struct {
	Writer
	r *Reopening
}

func (w *observedWriter) Commit(ctx context.Context) error {
	return w.r.observe(w.Writer.Commit(ctx))
}

func (r *Reopening) Upsert(ctx context.Context, doc *Document, w Writer) error {
	return withWriter(ctx, r, w, func(w Writer) error { return w.Upsert(doc) })
}

func (r *Reopening) Remove(ctx context.Context, id uint64, w Writer) error {
	return withWriter(ctx, r, w, func(w Writer) error { return w.Remove(id) })
}

func (r *Reopening) StoredFields(ctx context.Context) ([]StoredFields, error) {
	idx, err := r.current()
	if err != nil {
		return nil, err
	}
	out, err := idx.StoredFields(ctx)
	return out, r.observe(err)
}

func (r *Reopening) Search(ctx context.Context, query string, fields []string, limit int) ([]uint64, error) {
	idx, err := r.current()
	if err != nil {
		return nil, err
	}
	ids, err := idx.Search(ctx, query, fields, limit)
	return ids, r.observe(err)
}

func (r *Reopening) Count(ctx context.Context) (uint64, error) {
	idx, err := r.current()
	if err != nil {
		return 0, err
	}
	n, err := idx.Count(ctx)
	return n, r.observe(err)
}

// Generation stays monotonic across reopens.
func (r *Reopening) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idx == nil {
		return r.genBase
	}
	return r.genBase + r.idx.Generation()
}

func (r *Reopening) Backend() Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend
}

func (r *Reopening) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *Reopening) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.idx == nil {
		return nil
	}
	return r.idx.Close()
}
