package store

import (
	"context"
	"sync"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
)

// op is one staged mutation. A nil doc removes id.
type op struct {
	id  uint64
	doc *Document
}

// stagedWriter buffers operations in order and hands them to the engine
// in a single atomic apply on Commit.
type stagedWriter struct {
	mu       sync.Mutex
	gate     *writerGate
	ops      []op
	apply    func(ctx context.Context, ops []op) error
	onCommit func()
	done     bool
}

func newStagedWriter(gate *writerGate, apply func(context.Context, []op) error, onCommit func()) *stagedWriter {
	return &stagedWriter{gate: gate, apply: apply, onCommit: onCommit}
}

func (w *stagedWriter) Upsert(doc *Document) error {
	if doc == nil {
		return errors.ValidationError("nil document", nil)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.ErrWriterClosed
	}
	w.ops = append(w.ops, op{id: doc.ID, doc: doc})
	return nil
}

func (w *stagedWriter) Remove(id uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.ErrWriterClosed
	}
	w.ops = append(w.ops, op{id: id})
	return nil
}

func (w *stagedWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.ops)
}

// Commit applies staged operations and releases the write slot, whether or
// not the apply succeeds. An empty writer commits without touching the engine.
func (w *stagedWriter) Commit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.ErrWriterClosed
	}
	w.done = true
	defer w.gate.release()

	if len(w.ops) == 0 {
		return nil
	}
	if err := w.apply(ctx, w.ops); err != nil {
		return errors.New(errors.ErrCodeIndexWrite, "commit failed", err)
	}
	w.ops = nil
	if w.onCommit != nil {
		w.onCommit()
	}
	return nil
}

func (w *stagedWriter) Discard() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.done = true
	w.ops = nil
	w.gate.release()
}

// withWriter runs fn against w, or against a fresh writer that is committed
// afterwards when w is nil.
func withWriter(ctx context.Context, idx SearchIndex, w Writer, fn func(Writer) error) error {
	if w != nil {
		return fn(w)
	}
	nw, err := idx.NewWriter(ctx)
	if err != nil {
		return err
	}
	defer nw.Discard()
	if err := fn(nw); err != nil {
		return err
	}
	return nw.Commit(ctx)
}
