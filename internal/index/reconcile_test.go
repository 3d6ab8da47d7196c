package index

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/media"
	"github.com/Aman-CERP/indexedsearch/internal/store"
)

func TestReconcile_RepairsCorruptedIndex(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx store.SearchIndex) {
		ctx := context.Background()

		// Given: three entries indexed by an initial pass
		a := entry(1, "Entry A", "DescriptionA", t0)
		b := entry(2, "Entry B", "DescriptionB", t0)
		c := entry(3, "Entry C", "DescriptionC", t0)
		src := newMemSource(a, b, c)
		r := NewReconciler(idx, src, Options{})

		res, err := r.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Missing)
		assert.Equal(t, []uint64{1}, search(t, idx, "DescriptionA"))

		// And: the index corrupted by hand
		require.NoError(t, idx.Upsert(ctx, &store.Document{ID: 1, Title: "Entry A", Description: "fake_description_a", Time: tMinus1}, nil))
		require.NoError(t, idx.Upsert(ctx, &store.Document{ID: 2, Title: "Entry B", Description: "fake_description_b", Time: t0}, nil))
		require.NoError(t, idx.Remove(ctx, 3, nil))
		require.NoError(t, idx.Upsert(ctx, &store.Document{ID: 29, Title: "phantom", Time: t0}, nil))

		// When: reconciling
		res, err = r.Reconcile(ctx)
		require.NoError(t, err)

		// Then: stale A is rebuilt, B is untouched, C is restored, 29 is gone
		assert.Empty(t, search(t, idx, "fake_description_a"))
		assert.Equal(t, []uint64{1}, search(t, idx, "DescriptionA"))
		assert.Equal(t, []uint64{2}, search(t, idx, "fake_description_b"))
		assert.Equal(t, []uint64{3}, search(t, idx, "DescriptionC"))
		assert.Empty(t, search(t, idx, "phantom"))

		stored, err := idx.StoredFields(ctx)
		require.NoError(t, err)
		ids := make([]uint64, 0, len(stored))
		for _, sf := range stored {
			ids = append(ids, sf.ID)
		}
		assert.ElementsMatch(t, []uint64{1, 2, 3}, ids)

		assert.Equal(t, 3, res.Scanned)
		assert.Equal(t, 1, res.Orphans)
		assert.Equal(t, 1, res.Stale)
		assert.Equal(t, 1, res.Missing)
		assert.Equal(t, 2, res.Added)
		assert.Equal(t, 4, res.Staged)
	})
}

func TestReconcile_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx store.SearchIndex) {
		ctx := context.Background()
		src := newMemSource(entry(1, "one", "first", t0), entry(2, "two", "second", t0))
		r := NewReconciler(idx, src, Options{})

		first, err := r.Reconcile(ctx)
		require.NoError(t, err)
		assert.True(t, first.Changed())
		gen := idx.Generation()

		// When: nothing changed in the store
		second, err := r.Reconcile(ctx)
		require.NoError(t, err)

		// Then: the second pass stages nothing
		assert.False(t, second.Changed())
		assert.Zero(t, second.Added)
		assert.Zero(t, second.Orphans)
		assert.Zero(t, second.Stale)
		assert.Equal(t, gen, idx.Generation())
	})
}

func TestReconcile_EqualTimestampIsUpToDate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx store.SearchIndex) {
		ctx := context.Background()

		// Given: a document whose stored time equals the entry's updated time
		src := newMemSource(entry(1, "title", "real", t0))
		require.NoError(t, idx.Upsert(ctx, &store.Document{ID: 1, Description: "outdated", Time: t0}, nil))

		// When: reconciling
		res, err := NewReconciler(idx, src, Options{}).Reconcile(ctx)
		require.NoError(t, err)

		// Then: the document is not stale and is left alone
		assert.Zero(t, res.Stale)
		assert.Equal(t, []uint64{1}, search(t, idx, "outdated"))
		assert.Empty(t, search(t, idx, "real"))
	})
}

func TestReconcile_NewerEntryReplacesDocument(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx store.SearchIndex) {
		ctx := context.Background()
		src := newMemSource(entry(1, "title", "original", t0))
		r := NewReconciler(idx, src, Options{})
		_, err := r.Reconcile(ctx)
		require.NoError(t, err)

		// When: the entry is updated one nanosecond later
		src.put(entry(1, "title", "revised", t0.Add(time.Nanosecond)))
		res, err := r.Reconcile(ctx)
		require.NoError(t, err)

		// Then: the old text is gone and the new text is found
		assert.Equal(t, 1, res.Stale)
		assert.Empty(t, search(t, idx, "original"))
		assert.Equal(t, []uint64{1}, search(t, idx, "revised"))
	})
}

func TestReconcile_RemovesOrphans(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx store.SearchIndex) {
		ctx := context.Background()
		src := newMemSource(entry(1, "keep", "", t0), entry(2, "drop", "", t0))
		r := NewReconciler(idx, src, Options{})
		_, err := r.Reconcile(ctx)
		require.NoError(t, err)

		src.delete(2)
		res, err := r.Reconcile(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, res.Orphans)
		assert.Empty(t, search(t, idx, "drop"))
		assert.Equal(t, []uint64{1}, search(t, idx, "keep"))
	})
}

func TestReconcile_SkipsUnprocessed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx store.SearchIndex) {
		ctx := context.Background()

		// Given: an entry still processing
		pending := entry(5, "pending", "", t0)
		pending.State = media.StateProcessing
		src := newMemSource(pending)
		r := NewReconciler(idx, src, Options{})

		// Then: reconciliation leaves it out
		res, err := r.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Skipped)
		assert.Empty(t, search(t, idx, "pending"))

		// When: it finishes processing
		done := entry(5, "pending", "", tPlus1)
		src.put(done)
		res, err = r.Reconcile(ctx)
		require.NoError(t, err)

		// Then: the next pass indexes it
		assert.Equal(t, 1, res.Missing)
		assert.Equal(t, []uint64{5}, search(t, idx, "pending"))
	})
}

func TestReconcile_StaleUnprocessedIsRemovedNotReadded(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx store.SearchIndex) {
		ctx := context.Background()
		src := newMemSource(entry(1, "video", "", t0))
		r := NewReconciler(idx, src, Options{})
		_, err := r.Reconcile(ctx)
		require.NoError(t, err)

		// When: the entry is re-queued for processing with a newer time
		requeued := entry(1, "video", "", tPlus1)
		requeued.State = media.StateUnprocessed
		src.put(requeued)
		res, err := r.Reconcile(ctx)
		require.NoError(t, err)

		// Then: the stale document is removed and nothing replaces it
		assert.Equal(t, 1, res.Stale)
		assert.Equal(t, 1, res.Skipped)
		assert.Empty(t, search(t, idx, "video"))
	})
}

func TestReconcile_PruneUnprocessedPolicy(t *testing.T) {
	tests := []struct {
		name      string
		prune     bool
		wantFound bool
	}{
		{"keep by default", false, true},
		{"prune when enabled", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forEachBackend(t, func(t *testing.T, idx store.SearchIndex) {
				ctx := context.Background()
				src := newMemSource(entry(1, "regressed", "", t0))
				r := NewReconciler(idx, src, Options{PruneUnprocessed: tt.prune})
				_, err := r.Reconcile(ctx)
				require.NoError(t, err)

				// Given: the entry falls back to failed without a newer time
				failed := entry(1, "regressed", "", t0)
				failed.State = media.StateFailed
				src.put(failed)

				res, err := r.Reconcile(ctx)
				require.NoError(t, err)

				if tt.wantFound {
					assert.Zero(t, res.Pruned)
					assert.Equal(t, []uint64{1}, search(t, idx, "regressed"))
				} else {
					assert.Equal(t, 1, res.Pruned)
					assert.Empty(t, search(t, idx, "regressed"))
				}
			})
		})
	}
}

func TestReconcile_SourceErrorLeavesIndexUntouched(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx store.SearchIndex) {
		ctx := context.Background()
		require.NoError(t, idx.Upsert(ctx, &store.Document{ID: 9, Title: "survivor", Time: t0}, nil))
		gen := idx.Generation()

		src := newMemSource()
		src.listErr = stderrors.New("database is locked")

		_, err := NewReconciler(idx, src, Options{}).Reconcile(ctx)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeRecordStore, errors.GetCode(err))
		assert.Equal(t, gen, idx.Generation())
		assert.Equal(t, []uint64{9}, search(t, idx, "survivor"))

		// The writer was released
		w, err := idx.NewWriter(ctx)
		require.NoError(t, err)
		w.Discard()
	})
}

func TestReconcile_WriterBusy(t *testing.T) {
	ctx := context.Background()
	idx, _, err := store.OpenOrCreate("", store.Options{WriterTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	defer idx.Close()

	held, err := idx.NewWriter(ctx)
	require.NoError(t, err)
	defer held.Discard()

	_, err = NewReconciler(idx, newMemSource(), Options{}).Reconcile(ctx)
	assert.ErrorIs(t, err, errors.ErrWriterBusy)
}

func TestReconcile_RetriesBusyWriter(t *testing.T) {
	ctx := context.Background()
	idx, _, err := store.OpenOrCreate("", store.Options{WriterTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	defer idx.Close()

	// Given: a writer released shortly after the pass starts
	held, err := idx.NewWriter(ctx)
	require.NoError(t, err)
	go func() {
		time.Sleep(30 * time.Millisecond)
		held.Discard()
	}()

	retry := errors.DefaultRetryConfig()
	retry.InitialDelay = 10 * time.Millisecond
	retry.MaxRetries = 5
	r := NewReconciler(idx, newMemSource(entry(1, "eventually", "", t0)), Options{Retry: retry})

	// Then: the pass completes once the writer frees up
	res, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
}

func TestCheck_ReportsWithoutWriting(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx store.SearchIndex) {
		ctx := context.Background()
		src := newMemSource(entry(1, "stale", "", tPlus1), entry(2, "missing", "", t0))
		require.NoError(t, idx.Upsert(ctx, &store.Document{ID: 1, Time: t0}, nil))
		require.NoError(t, idx.Upsert(ctx, &store.Document{ID: 7, Time: t0}, nil))
		gen := idx.Generation()

		res, err := NewReconciler(idx, src, Options{}).Check(ctx)
		require.NoError(t, err)

		assert.False(t, res.Consistent())
		assert.Equal(t, 2, res.Checked)
		assert.Equal(t, 1, res.Count(InconsistencyOrphan))
		assert.Equal(t, 1, res.Count(InconsistencyStale))
		assert.Equal(t, 1, res.Count(InconsistencyMissing))
		assert.Equal(t, gen, idx.Generation())
	})
}

func TestInconsistencyType_String(t *testing.T) {
	assert.Equal(t, "orphan", InconsistencyOrphan.String())
	assert.Equal(t, "stale", InconsistencyStale.String())
	assert.Equal(t, "missing", InconsistencyMissing.String())
	assert.Equal(t, "unprocessed", InconsistencyUnprocessed.String())
	assert.Equal(t, "unknown", InconsistencyType(99).String())
}
