package async

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexedsearch/internal/index"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond)
}

func TestScheduler_StartupPassOnly(t *testing.T) {
	// Given: a scheduler with no interval
	var calls atomic.Int32
	s := NewScheduler(SchedulerConfig{}, func(ctx context.Context) (*index.Result, error) {
		calls.Add(1)
		return &index.Result{Added: 3}, nil
	})

	// When: started
	s.Start(context.Background())
	waitFor(t, func() bool { return s.Status().Ready() })
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	// Then: exactly one pass ran and its result is recorded
	assert.Equal(t, int32(1), calls.Load())
	snap := s.Status().Snapshot()
	assert.Equal(t, "ready", snap.State)
	assert.Equal(t, 1, snap.Runs)
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, 3, snap.LastResult.Added)
	assert.NoError(t, s.Wait())
}

func TestScheduler_PeriodicPasses(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(SchedulerConfig{Interval: 10 * time.Millisecond},
		func(ctx context.Context) (*index.Result, error) {
			calls.Add(1)
			return &index.Result{}, nil
		})

	s.Start(context.Background())
	waitFor(t, func() bool { return calls.Load() >= 3 })
	s.Stop()

	assert.GreaterOrEqual(t, s.Status().Snapshot().Runs, 3)
}

func TestScheduler_TriggerRunsExtraPass(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(SchedulerConfig{}, func(ctx context.Context) (*index.Result, error) {
		calls.Add(1)
		return &index.Result{}, nil
	})
	s.Start(context.Background())
	waitFor(t, func() bool { return calls.Load() == 1 })

	// When: a pass is requested
	s.Trigger()

	// Then: a second pass runs
	waitFor(t, func() bool { return calls.Load() == 2 })
	s.Stop()
}

func TestScheduler_FailureRecorded(t *testing.T) {
	// Given: a first pass that fails and a second that succeeds
	var calls atomic.Int32
	s := NewScheduler(SchedulerConfig{}, func(ctx context.Context) (*index.Result, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("record store offline")
		}
		return &index.Result{Staged: 1}, nil
	})
	s.Start(context.Background())

	// Then: the error is visible
	waitFor(t, func() bool { return s.Status().Snapshot().State == "error" })
	snap := s.Status().Snapshot()
	assert.Contains(t, snap.ErrorMessage, "record store offline")
	assert.Equal(t, 1, snap.Failures)
	assert.Error(t, s.Err())

	// When: the next pass succeeds
	s.Trigger()
	waitFor(t, func() bool { return s.Status().Ready() })
	s.Stop()

	// Then: the error is cleared
	snap = s.Status().Snapshot()
	assert.Empty(t, snap.ErrorMessage)
	assert.Equal(t, 2, snap.Runs)
	assert.NoError(t, s.Err())
}

func TestScheduler_StopCancelsPass(t *testing.T) {
	var canceled atomic.Bool
	started := make(chan struct{})
	s := NewScheduler(SchedulerConfig{}, func(ctx context.Context) (*index.Result, error) {
		close(started)
		<-ctx.Done()
		canceled.Store(true)
		return nil, ctx.Err()
	})
	s.Start(context.Background())
	<-started

	s.Stop()

	assert.True(t, canceled.Load())
	assert.ErrorIs(t, s.Wait(), context.Canceled)
}

func TestScheduler_ParentContextCancel(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Interval: time.Hour},
		func(ctx context.Context) (*index.Result, error) { return &index.Result{}, nil })
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	waitFor(t, func() bool { return s.Status().Ready() })

	cancel()

	done := make(chan struct{})
	go func() {
		_ = s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not exit on context cancel")
	}
}

func TestScheduler_StartIdempotentAndStopSafe(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(SchedulerConfig{}, func(ctx context.Context) (*index.Result, error) {
		calls.Add(1)
		return &index.Result{}, nil
	})

	s.Stop() // not started: no-op

	s.Start(context.Background())
	s.Start(context.Background())
	waitFor(t, func() bool { return s.Status().Ready() })
	s.Stop()
	s.Stop()

	assert.Equal(t, int32(1), calls.Load())
}

func TestScheduler_LockFileDuringPass(t *testing.T) {
	dir := t.TempDir()
	var held atomic.Bool
	s := NewScheduler(SchedulerConfig{DataDir: dir}, func(ctx context.Context) (*index.Result, error) {
		held.Store(HasIncompleteLock(dir))
		return &index.Result{}, nil
	})

	s.Start(context.Background())
	waitFor(t, func() bool { return s.Status().Ready() })
	s.Stop()

	assert.True(t, held.Load())
	_, err := os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestHasIncompleteLock(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, HasIncompleteLock(dir))
	assert.False(t, HasIncompleteLock(""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), []byte("x"), 0o644))
	assert.True(t, HasIncompleteLock(dir))
}

func TestStatus_SnapshotCopiesResult(t *testing.T) {
	st := NewStatus()
	assert.Equal(t, "starting", st.Snapshot().State)
	assert.False(t, st.Ready())

	res := &index.Result{Added: 1}
	st.Begin()
	assert.Equal(t, "reconciling", st.Snapshot().State)
	st.Finish(res)

	snap := st.Snapshot()
	snap.LastResult.Added = 99
	assert.Equal(t, 1, st.Snapshot().LastResult.Added)
	assert.False(t, st.Snapshot().LastStarted.IsZero())
}
