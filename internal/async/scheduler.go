package async

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/indexedsearch/internal/index"
)

// LockFileName marks a pass in progress inside the data directory. It is
// left behind when the process dies mid-pass.
const LockFileName = "reconcile.lock"

// ReconcileFunc performs one reconciliation pass.
type ReconcileFunc func(ctx context.Context) (*index.Result, error)

// SchedulerConfig configures the Scheduler.
type SchedulerConfig struct {
	// Interval between periodic passes. Zero runs the startup pass only.
	Interval time.Duration
	// DataDir holds the lock file. Empty disables it.
	DataDir string
	Logger  *slog.Logger
}

// Scheduler runs a reconciliation pass at startup and then every Interval.
type Scheduler struct {
	config    SchedulerConfig
	reconcile ReconcileFunc
	status    *Status
	logger    *slog.Logger

	trigger chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	err     error
}

// NewScheduler creates a scheduler that runs fn.
func NewScheduler(cfg SchedulerConfig, fn ReconcileFunc) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		config:    cfg,
		reconcile: fn,
		status:    NewStatus(),
		logger:    logger,
		trigger:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Status returns the run tracker.
func (s *Scheduler) Status() *Status {
	return s.status
}

// Start runs the loop in a background goroutine and returns immediately.
// Calling Start more than once has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run(ctx)
}

// Trigger requests an extra pass. Requests made while one is pending
// collapse into one.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if HasIncompleteLock(s.config.DataDir) {
		s.logger.Warn("reconcile_interrupted_previously",
			slog.String("data_dir", s.config.DataDir))
	}

	s.setErr(s.runOnce(ctx))

	var tick <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
		s.logger.Info("reconcile_schedule_started",
			slog.Duration("interval", s.config.Interval))
	}

	for {
		select {
		case <-tick:
			s.setErr(s.runOnce(ctx))
		case <-s.trigger:
			s.setErr(s.runOnce(ctx))
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.status.Begin()

	release, err := acquireLock(s.config.DataDir)
	if err != nil {
		s.status.Fail(err.Error())
		s.logger.Error("reconcile_lock_failed", slog.String("error", err.Error()))
		return err
	}
	defer release()

	res, err := s.reconcile(ctx)
	if err != nil {
		s.status.Fail(err.Error())
		return err
	}
	s.status.Finish(res)
	return nil
}

func (s *Scheduler) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Err returns the error of the most recent pass.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop signals the loop to stop and waits for it. A pass in progress sees
// its context canceled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}

// Wait blocks until the loop exits and returns the last pass's error.
func (s *Scheduler) Wait() error {
	<-s.doneCh
	return s.Err()
}

func acquireLock(dataDir string) (func(), error) {
	if dataDir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, LockFileName)
	if err := os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		return nil, err
	}
	return func() { _ = os.Remove(path) }, nil
}

// HasIncompleteLock reports whether a previous pass left its lock file.
func HasIncompleteLock(dataDir string) bool {
	if dataDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(dataDir, LockFileName))
	return err == nil
}
