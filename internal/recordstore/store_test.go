package recordstore

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/media"
)

type call struct {
	kind string
	id   uint64
}

// spy records notifications in order.
type spy struct {
	mu    sync.Mutex
	calls []call
	fail  error
}

func (s *spy) add(kind string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{kind, id})
	return s.fail
}

func (s *spy) OnInsert(_ context.Context, e *media.Entry) error { return s.add("insert", e.ID) }
func (s *spy) OnUpdate(_ context.Context, e *media.Entry) error { return s.add("update", e.ID) }
func (s *spy) OnDelete(_ context.Context, id uint64) error      { return s.add("delete", id) }
func (s *spy) OnCommentChange(_ context.Context, c *media.Comment) error {
	return s.add("comment", c.MediaID)
}

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAndFind(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	// Given: an entry with ordered tags and an owner
	e := &media.Entry{
		Title:       "Harbour",
		Description: "boats at dawn",
		Tags:        []media.Tag{{Name: "sea"}, {Name: "boats"}, {Name: "dawn"}},
		State:       media.StateProcessed,
		Actor:       &media.Actor{Username: "bob"},
	}

	// When: inserting it
	require.NoError(t, s.Insert(ctx, e))

	// Then: an id and a UTC timestamp are assigned
	assert.NotZero(t, e.ID)
	assert.Equal(t, time.UTC, e.Updated.Location())

	got, err := s.FindByID(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Harbour", got.Title)
	assert.Equal(t, "boats at dawn", got.Description)
	assert.Equal(t, []media.Tag{{Name: "sea"}, {Name: "boats"}, {Name: "dawn"}}, got.Tags)
	assert.Equal(t, media.StateProcessed, got.State)
	require.NotNil(t, got.Actor)
	assert.Equal(t, "bob", got.Actor.Username)
	assert.True(t, got.Updated.Equal(e.Updated), "nanosecond precision survives the round trip")
}

func TestInsert_DefaultsToUnprocessed(t *testing.T) {
	s := openTest(t)
	e := &media.Entry{Title: "upload"}

	require.NoError(t, s.Insert(context.Background(), e))

	got, err := s.FindByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, media.StateUnprocessed, got.State)
	assert.Nil(t, got.Actor)
}

func TestInsert_ExplicitID(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.Insert(context.Background(), &media.Entry{ID: 29, Title: "fixed"}))

	got, err := s.FindByID(context.Background(), 29)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "fixed", got.Title)
}

func TestInsert_InvalidState(t *testing.T) {
	s := openTest(t)
	err := s.Insert(context.Background(), &media.Entry{Title: "x", State: "exploded"})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestFindByID_Missing(t *testing.T) {
	s := openTest(t)
	got, err := s.FindByID(context.Background(), 12345)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdate_BumpsTimeAndReplacesTags(t *testing.T) {
	// Given: a clock that does not move
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := Open(context.Background(), "", Options{Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	e := &media.Entry{Title: "v1", Tags: []media.Tag{{Name: "old"}}, State: media.StateProcessed}
	require.NoError(t, s.Insert(ctx, e))
	first := e.Updated

	// When: updating
	e.Title = "v2"
	e.Tags = []media.Tag{{Name: "new"}, {Name: "tags"}}
	require.NoError(t, s.Update(ctx, e))

	// Then: the modification time is strictly later
	assert.True(t, e.Updated.After(first))
	got, err := s.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
	assert.Equal(t, []media.Tag{{Name: "new"}, {Name: "tags"}}, got.Tags)
	assert.True(t, got.Updated.Equal(e.Updated))
}

func TestUpdate_Missing(t *testing.T) {
	s := openTest(t)
	err := s.Update(context.Background(), &media.Entry{ID: 77, Title: "ghost"})
	assert.ErrorIs(t, err, errors.ErrMediaNotFound)
}

func TestDelete_CascadesAndNotFound(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	e := &media.Entry{Title: "gone", Tags: []media.Tag{{Name: "t"}}}
	require.NoError(t, s.Insert(ctx, e))
	_, err := s.AddComment(ctx, e.ID, "nice")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, e.ID))

	got, err := s.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, s.Delete(ctx, e.ID), errors.ErrMediaNotFound)
}

func TestComments_InInsertionOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	e := &media.Entry{Title: "commented"}
	require.NoError(t, s.Insert(ctx, e))
	before := e.Updated

	for _, text := range []string{"first", "second", "third"} {
		_, err := s.AddComment(ctx, e.ID, text)
		require.NoError(t, err)
	}

	got, err := s.FindByID(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 3)
	assert.Equal(t, "first", got.Comments[0].Content)
	assert.Equal(t, "third", got.Comments[2].Content)
	assert.Equal(t, e.ID, got.Comments[1].MediaID)
	assert.True(t, got.Updated.After(before), "a comment stamps the owning entry")
}

func TestAddComment_MissingEntry(t *testing.T) {
	s := openTest(t)
	_, err := s.AddComment(context.Background(), 5, "hello?")
	assert.ErrorIs(t, err, errors.ErrMediaNotFound)
}

func TestDeleteComment(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	e := &media.Entry{Title: "x"}
	require.NoError(t, s.Insert(ctx, e))
	c, err := s.AddComment(ctx, e.ID, "regret")
	require.NoError(t, err)

	added, err := s.FindByID(ctx, e.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteComment(ctx, c.ID))

	got, err := s.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Comments)
	assert.True(t, got.Updated.After(added.Updated), "deleting a comment stamps the owning entry")
	assert.ErrorIs(t, s.DeleteComment(ctx, c.ID), errors.ErrMediaNotFound)
}

func TestListAll_OrderedWithChildren(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c"} {
		e := &media.Entry{Title: title, Tags: []media.Tag{{Name: "tag-" + title}}}
		require.NoError(t, s.Insert(ctx, e))
		_, err := s.AddComment(ctx, e.ID, "on "+title)
		require.NoError(t, err)
	}

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, title := range []string{"a", "b", "c"} {
		assert.Equal(t, title, all[i].Title)
		assert.Equal(t, []media.Tag{{Name: "tag-" + title}}, all[i].Tags)
		require.Len(t, all[i].Comments, 1)
		assert.Equal(t, "on "+title, all[i].Comments[0].Content)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestListAll_Empty(t *testing.T) {
	all, err := openTest(t).ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSubscribe_NotifiesInOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sp := &spy{}
	unsubscribe := s.Subscribe(sp)

	e := &media.Entry{Title: "x"}
	require.NoError(t, s.Insert(ctx, e))
	require.NoError(t, s.Update(ctx, e))
	c, err := s.AddComment(ctx, e.ID, "hi")
	require.NoError(t, err)
	require.NoError(t, s.DeleteComment(ctx, c.ID))
	require.NoError(t, s.Delete(ctx, e.ID))

	assert.Equal(t, []call{
		{"insert", e.ID}, {"update", e.ID}, {"comment", e.ID}, {"comment", e.ID}, {"delete", e.ID},
	}, sp.calls)

	// When: unsubscribed, nothing more is delivered
	unsubscribe()
	unsubscribe()
	require.NoError(t, s.Insert(ctx, &media.Entry{Title: "quiet"}))
	assert.Len(t, sp.calls, 5)
}

func TestSubscribe_FailedMutationDoesNotNotify(t *testing.T) {
	s := openTest(t)
	sp := &spy{}
	s.Subscribe(sp)

	_ = s.Delete(context.Background(), 404)

	assert.Empty(t, sp.calls)
}

func TestSubscribe_ObserverErrorStillCommits(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	failing := &spy{fail: stderrors.New("index down")}
	healthy := &spy{}
	s.Subscribe(failing)
	s.Subscribe(healthy)

	e := &media.Entry{Title: "kept"}
	err := s.Insert(ctx, e)

	// Then: the dispatch error is reported, the entry is stored and every
	// observer ran
	assert.Equal(t, errors.ErrCodeEventDispatch, errors.GetCode(err))
	got, findErr := s.FindByID(ctx, e.ID)
	require.NoError(t, findErr)
	assert.NotNil(t, got)
	assert.Len(t, healthy.calls, 1)
}

func TestUpdate_NotifiesWithStoredComments(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	e := &media.Entry{Title: "x"}
	require.NoError(t, s.Insert(ctx, e))
	_, err := s.AddComment(ctx, e.ID, "persisted")
	require.NoError(t, err)

	var seen *media.Entry
	s.Subscribe(observerFunc(func(e *media.Entry) { seen = e }))

	e.Comments = nil
	require.NoError(t, s.Update(ctx, e))

	require.NotNil(t, seen)
	require.Len(t, seen.Comments, 1)
	assert.Equal(t, "persisted", seen.Comments[0].Content)
}

func TestOpen_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "media.db")
	ctx := context.Background()

	s, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	e := &media.Entry{Title: "durable", State: media.StateProcessed}
	require.NoError(t, s.Insert(ctx, e))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, Options{})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.FindByID(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "durable", got.Title)
	assert.Equal(t, path, s.Path())
}

func TestParseDriver(t *testing.T) {
	d, err := ParseDriver("")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, d)

	d, err = ParseDriver("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite3, d)

	_, err = ParseDriver("postgres")
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

// observerFunc captures updates only.
type observerFunc func(*media.Entry)

func (f observerFunc) OnInsert(context.Context, *media.Entry) error { return nil }
func (f observerFunc) OnUpdate(_ context.Context, e *media.Entry) error {
	f(e)
	return nil
}
func (f observerFunc) OnDelete(context.Context, uint64) error                { return nil }
func (f observerFunc) OnCommentChange(context.Context, *media.Comment) error { return nil }

// captor keeps the entries observers receive.
type captor struct {
	spy
	inserted []*media.Entry
}

func (c *captor) OnInsert(_ context.Context, e *media.Entry) error {
	c.inserted = append(c.inserted, e)
	return nil
}

func TestInsert_ObserversSeeStoredEntry(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	obs := &captor{}
	s.Subscribe(obs)

	// Given: an entry that arrives with comments Insert does not store
	e := &media.Entry{
		Title:    "lighthouse",
		Comments: []media.Comment{{Content: "never stored"}},
	}

	// When: it is inserted
	require.NoError(t, s.Insert(ctx, e))

	// Then: observers and the caller only see what the store holds
	require.Len(t, obs.inserted, 1)
	assert.Equal(t, e.ID, obs.inserted[0].ID)
	assert.Empty(t, obs.inserted[0].Comments)
	assert.Empty(t, e.Comments)
}
