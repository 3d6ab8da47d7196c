package index

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexedsearch/internal/media"
	"github.com/Aman-CERP/indexedsearch/internal/store"
)

// memSource is an in-memory media.Source.
type memSource struct {
	mu      sync.Mutex
	entries map[uint64]*media.Entry
	listErr error
}

func newMemSource(entries ...*media.Entry) *memSource {
	s := &memSource{entries: make(map[uint64]*media.Entry)}
	for _, e := range entries {
		s.put(e)
	}
	return s
}

func (s *memSource) put(e *media.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[e.ID] = &cp
}

func (s *memSource) delete(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

func (s *memSource) FindByID(_ context.Context, id uint64) (*media.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *memSource) ListAll(_ context.Context) ([]*media.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]*media.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	t0      = time.Date(2026, 5, 4, 10, 30, 0, 987654321, time.UTC)
	tMinus1 = t0.Add(-time.Second)
	tPlus1  = t0.Add(time.Second)
)

func entry(id uint64, title, description string, updated time.Time) *media.Entry {
	return &media.Entry{
		ID:          id,
		Title:       title,
		Description: description,
		Updated:     updated,
		State:       media.StateProcessed,
	}
}

var backends = []store.Backend{store.BackendBleve, store.BackendSQLite}

func forEachBackend(t *testing.T, fn func(t *testing.T, idx store.SearchIndex)) {
	t.Helper()
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			idx, _, err := store.OpenOrCreate("", store.Options{Backend: b, WriterTimeout: time.Second})
			require.NoError(t, err)
			t.Cleanup(func() { _ = idx.Close() })
			fn(t, idx)
		})
	}
}

func search(t *testing.T, idx store.SearchIndex, q string) []uint64 {
	t.Helper()
	ids, err := idx.Search(context.Background(), q, store.DefaultSearchFields, 100)
	require.NoError(t, err)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
