package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/media"
	"github.com/Aman-CERP/indexedsearch/internal/metrics"
	"github.com/Aman-CERP/indexedsearch/internal/store"
)

// Options configures the reconciler and the change listener.
type Options struct {
	// PruneUnprocessed removes an indexed document whose entry exists but is
	// no longer processed. When false such documents stay until the entry
	// is deleted or re-processed.
	PruneUnprocessed bool

	// Retry governs retries when the index writer is busy. The zero value
	// disables retries.
	Retry errors.RetryConfig

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Result summarises one reconciliation pass.
type Result struct {
	// Scanned is the number of documents in the index snapshot.
	Scanned int `json:"scanned"`
	// Records is the number of entries in the record store.
	Records int `json:"records"`
	// Orphans were indexed but no longer exist.
	Orphans int `json:"orphans"`
	// Stale were indexed before their entry's last update.
	Stale int `json:"stale"`
	// Pruned were indexed but their entry is no longer processed.
	Pruned int `json:"pruned"`
	// Missing were never indexed and have now been added.
	Missing int `json:"missing"`
	// Added counts documents staged for indexing, stale ones included.
	Added int `json:"added"`
	// Skipped entries were not processed and so not indexed.
	Skipped int `json:"skipped"`
	// Staged is the number of operations committed.
	Staged   int           `json:"staged"`
	Duration time.Duration `json:"duration"`
}

// Changed reports whether the pass modified the index.
func (r *Result) Changed() bool {
	return r.Staged > 0
}

type removal struct {
	id     uint64
	reason InconsistencyType
}

// plan is the set of changes that makes the index match the store.
type plan struct {
	scanned  int
	records  int
	removals []removal
	adds     []*store.Document
	missing  []uint64
	skipped  int
}

// Reconciler makes the index consistent with the record store in one pass.
type Reconciler struct {
	index  store.SearchIndex
	source media.Source
	opts   Options
	logger *slog.Logger
}

// NewReconciler creates a reconciler over idx and source.
func NewReconciler(idx store.SearchIndex, source media.Source, opts Options) *Reconciler {
	return &Reconciler{
		index:  idx,
		source: source,
		opts:   opts,
		logger: opts.logger(),
	}
}

// buildPlan compares the stored-field snapshot with the current records.
// An entry is stale only when its updated time is strictly after the
// stored time. Stale entries are removed and re-added, never merged.
func (r *Reconciler) buildPlan(ctx context.Context) (*plan, error) {
	stored, err := r.index.StoredFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("read index snapshot: %w", err)
	}
	records, err := r.source.ListAll(ctx)
	if err != nil {
		return nil, errors.New(errors.ErrCodeRecordStore, "failed to list media entries", err)
	}

	byID := make(map[uint64]*media.Entry, len(records))
	for _, e := range records {
		byID[e.ID] = e
	}

	p := &plan{scanned: len(stored), records: len(records)}
	seen := make(map[uint64]bool, len(stored))
	reindex := make(map[uint64]bool)

	for _, sf := range stored {
		seen[sf.ID] = true
		e, ok := byID[sf.ID]
		switch {
		case !ok:
			p.removals = append(p.removals, removal{id: sf.ID, reason: InconsistencyOrphan})
		case e.Updated.After(sf.Time):
			p.removals = append(p.removals, removal{id: sf.ID, reason: InconsistencyStale})
			reindex[sf.ID] = true
		case r.opts.PruneUnprocessed && !e.Processed():
			p.removals = append(p.removals, removal{id: sf.ID, reason: InconsistencyUnprocessed})
		}
	}

	for _, e := range records {
		if !reindex[e.ID] && seen[e.ID] {
			continue
		}
		doc, err := Project(e)
		if stderrors.Is(err, errors.ErrNotProcessed) {
			r.logger.Debug("reconcile_skip_unprocessed",
				slog.Uint64("media_id", e.ID),
				slog.String("state", string(e.State)))
			p.skipped++
			continue
		}
		if err != nil {
			return nil, err
		}
		p.adds = append(p.adds, doc)
		if !seen[e.ID] {
			p.missing = append(p.missing, e.ID)
		}
	}
	return p, nil
}

// Reconcile removes orphaned and stale documents and indexes new and
// updated entries under a single writer, committing once. The writer is
// held for the whole pass; concurrent writes wait behind it.
func (r *Reconciler) Reconcile(ctx context.Context) (*Result, error) {
	start := time.Now()
	metrics.ReconcileIsRunning.Set(1)
	defer metrics.ReconcileIsRunning.Set(0)

	res, err := r.reconcile(ctx)
	if err != nil {
		metrics.ReconcileRunsTotal.WithLabelValues("error").Inc()
		r.logger.Error("reconcile_failed", slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, err
	}

	res.Duration = time.Since(start)
	metrics.ReconcileRunsTotal.WithLabelValues("ok").Inc()
	metrics.ReconcileDuration.Observe(res.Duration.Seconds())
	metrics.ReconcileLastRunTimestamp.SetToCurrentTime()
	metrics.ReconcileDocuments.WithLabelValues("orphan").Add(float64(res.Orphans))
	metrics.ReconcileDocuments.WithLabelValues("stale").Add(float64(res.Stale))
	metrics.ReconcileDocuments.WithLabelValues("pruned").Add(float64(res.Pruned))
	metrics.ReconcileDocuments.WithLabelValues("added").Add(float64(res.Added))
	metrics.ReconcileDocuments.WithLabelValues("skipped").Add(float64(res.Skipped))

	r.logger.Info("reconcile_complete",
		slog.Int("scanned", res.Scanned),
		slog.Int("records", res.Records),
		slog.Int("orphans", res.Orphans),
		slog.Int("stale", res.Stale),
		slog.Int("pruned", res.Pruned),
		slog.Int("added", res.Added),
		slog.Int("skipped", res.Skipped),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context) (*Result, error) {
	w, err := r.newWriter(ctx)
	if err != nil {
		return nil, err
	}
	defer w.Discard()

	p, err := r.buildPlan(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Scanned: p.scanned,
		Records: p.records,
		Missing: len(p.missing),
		Added:   len(p.adds),
		Skipped: p.skipped,
	}
	for _, rm := range p.removals {
		if err := r.index.Remove(ctx, rm.id, w); err != nil {
			return nil, err
		}
		switch rm.reason {
		case InconsistencyOrphan:
			r.logger.Debug("reconcile_remove_orphan", slog.Uint64("media_id", rm.id))
			res.Orphans++
		case InconsistencyStale:
			res.Stale++
		case InconsistencyUnprocessed:
			res.Pruned++
		}
	}
	for _, doc := range p.adds {
		if err := r.index.Upsert(ctx, doc, w); err != nil {
			return nil, err
		}
	}

	res.Staged = w.Len()
	if err := w.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Reconciler) newWriter(ctx context.Context) (store.Writer, error) {
	if r.opts.Retry.MaxRetries == 0 {
		return r.index.NewWriter(ctx)
	}
	return errors.RetryWithResult(ctx, r.opts.Retry, func() (store.Writer, error) {
		return r.index.NewWriter(ctx)
	})
}
