package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/metrics"
)

// LockFileName is created inside the index directory and held by the
// active writer.
const LockFileName = ".write.lock"

// lockRetryDelay is how often a blocked writer retries the file lock.
const lockRetryDelay = 50 * time.Millisecond

// writerGate grants the single write slot of an index. Inside a process
// the slot is a one-element semaphore; across processes it is an exclusive
// flock on LockFileName. An empty dir (in-memory index) skips the file lock.
type writerGate struct {
	slot    chan struct{}
	flock   *flock.Flock
	timeout time.Duration
}

func newWriterGate(dir string, timeout time.Duration) *writerGate {
	g := &writerGate{
		slot:    make(chan struct{}, 1),
		timeout: timeout,
	}
	if dir != "" {
		g.flock = flock.New(filepath.Join(dir, LockFileName))
	}
	return g
}

// acquire blocks until the slot is free. It fails with ErrWriterBusy when
// the timeout passes first; a zero timeout waits for ctx only.
func (g *writerGate) acquire(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.WriterWaitDuration.Observe(time.Since(start).Seconds()) }()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return busyError(ctx.Err(), g.timeout)
	}

	if g.flock == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(g.flock.Path()), 0o755); err != nil {
		<-g.slot
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	locked, err := g.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		<-g.slot
		if ctx.Err() != nil {
			return busyError(ctx.Err(), g.timeout)
		}
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	return nil
}

func (g *writerGate) release() {
	if g.flock != nil {
		_ = g.flock.Unlock()
	}
	select {
	case <-g.slot:
	default:
	}
}

func busyError(cause error, timeout time.Duration) error {
	if cause == context.Canceled {
		return cause
	}
	return errors.New(errors.ErrCodeWriterBusy,
		fmt.Sprintf("index writer still busy after %s", timeout), cause).
		WithSuggestion("another reconciliation or process holds the index; retry later")
}
