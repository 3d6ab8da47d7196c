// Package async runs background reconciliation for indexedsearch.
package async

import (
	"sync"
	"time"

	"github.com/Aman-CERP/indexedsearch/internal/index"
)

// State is the scheduler's overall state.
type State string

const (
	// StateStarting means the startup pass has not finished yet.
	StateStarting State = "starting"
	// StateReconciling means a pass is in progress.
	StateReconciling State = "reconciling"
	// StateReady means the last pass succeeded and search is consistent.
	StateReady State = "ready"
	// StateError means the last pass failed.
	StateError State = "error"
)

// StatusSnapshot is an immutable copy of the scheduler status.
type StatusSnapshot struct {
	State        string        `json:"state"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	LastStarted  time.Time     `json:"last_started,omitempty"`
	LastFinished time.Time     `json:"last_finished,omitempty"`
	LastResult   *index.Result `json:"last_result,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	UptimeSec    int           `json:"uptime_seconds"`
}

// Status tracks reconciliation runs. Safe for concurrent use.
type Status struct {
	mu sync.RWMutex

	state        State
	runs         int
	failures     int
	lastStarted  time.Time
	lastFinished time.Time
	lastResult   *index.Result
	errorMessage string
	startTime    time.Time
}

// NewStatus returns a status in the starting state.
func NewStatus() *Status {
	return &Status{
		state:     StateStarting,
		startTime: time.Now(),
	}
}

// Begin marks a pass as started.
func (s *Status) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateReconciling
	s.lastStarted = time.Now()
}

// Finish records a successful pass and its result.
func (s *Status) Finish(res *index.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateReady
	s.runs++
	s.lastFinished = time.Now()
	s.lastResult = res
	s.errorMessage = ""
}

// Fail records a failed pass. The last good result is kept.
func (s *Status) Fail(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateError
	s.runs++
	s.failures++
	s.lastFinished = time.Now()
	s.errorMessage = message
}

// Ready reports whether at least one pass succeeded and the last did.
func (s *Status) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateReady
}

// Snapshot returns a copy of the current status.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res *index.Result
	if s.lastResult != nil {
		cp := *s.lastResult
		res = &cp
	}
	return StatusSnapshot{
		State:        string(s.state),
		Runs:         s.runs,
		Failures:     s.failures,
		LastStarted:  s.lastStarted,
		LastFinished: s.lastFinished,
		LastResult:   res,
		ErrorMessage: s.errorMessage,
		UptimeSec:    int(time.Since(s.startTime).Seconds()),
	}
}
