package index

import (
	"context"
	"time"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphan indicates a document whose entry no longer exists.
	InconsistencyOrphan InconsistencyType = iota
	// InconsistencyStale indicates a document older than its entry.
	InconsistencyStale
	// InconsistencyMissing indicates a processed entry with no document.
	InconsistencyMissing
	// InconsistencyUnprocessed indicates a document whose entry is no longer
	// processed. Only reported when PruneUnprocessed is set.
	InconsistencyUnprocessed
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphan:
		return "orphan"
	case InconsistencyStale:
		return "stale"
	case InconsistencyMissing:
		return "missing"
	case InconsistencyUnprocessed:
		return "unprocessed"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in JSON output.
func (t InconsistencyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Inconsistency represents one document that differs from the store.
type Inconsistency struct {
	Type    InconsistencyType `json:"type"`
	MediaID uint64            `json:"media_id"`
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of documents in the index snapshot.
	Checked int `json:"checked"`
	// Records is the number of entries in the record store.
	Records int `json:"records"`
	// Skipped entries are unprocessed and correctly absent.
	Skipped         int             `json:"skipped"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Duration        time.Duration   `json:"duration"`
}

// Consistent reports whether the index matches the store.
func (c *CheckResult) Consistent() bool {
	return len(c.Inconsistencies) == 0
}

// Count returns the number of inconsistencies of type t.
func (c *CheckResult) Count(t InconsistencyType) int {
	n := 0
	for _, i := range c.Inconsistencies {
		if i.Type == t {
			n++
		}
	}
	return n
}

// Check computes what Reconcile would change without taking the writer or
// modifying the index.
func (r *Reconciler) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	p, err := r.buildPlan(ctx)
	if err != nil {
		return nil, err
	}

	issues := make([]Inconsistency, 0, len(p.removals)+len(p.missing))
	for _, rm := range p.removals {
		issues = append(issues, Inconsistency{Type: rm.reason, MediaID: rm.id})
	}
	for _, id := range p.missing {
		issues = append(issues, Inconsistency{Type: InconsistencyMissing, MediaID: id})
	}

	return &CheckResult{
		Checked:         p.scanned,
		Records:         p.records,
		Skipped:         p.skipped,
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}
