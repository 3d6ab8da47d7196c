package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/media"
)

func TestProject_ProcessedEntry(t *testing.T) {
	// Given: a processed entry with tags, comments and an owner
	local := time.FixedZone("UTC+2", 2*60*60)
	e := &media.Entry{
		ID:          42,
		Title:       "Sunset",
		Description: "Over the bay",
		Tags:        []media.Tag{{Name: "sky"}, {Name: "orange"}, {Name: "evening"}},
		Comments: []media.Comment{
			{ID: 1, MediaID: 42, Content: "wow"},
			{ID: 2, MediaID: 42, Content: "great colours"},
		},
		Updated: time.Date(2026, 1, 2, 14, 0, 0, 5, local),
		State:   media.StateProcessed,
		Actor:   &media.Actor{Username: "alice"},
	}

	// When: projecting
	doc, err := Project(e)

	// Then: fields are shaped for the index
	require.NoError(t, err)
	assert.Equal(t, uint64(42), doc.ID)
	assert.Equal(t, "Sunset", doc.Title)
	assert.Equal(t, "Over the bay", doc.Description)
	assert.Equal(t, "sky orange evening", doc.Tag)
	assert.Equal(t, "wow\ngreat colours", doc.Comment)
	assert.Equal(t, "alice", doc.User)
	assert.Equal(t, time.UTC, doc.Time.Location())
	assert.True(t, doc.Time.Equal(e.Updated))
}

func TestProject_NoActorNoTagsNoComments(t *testing.T) {
	doc, err := Project(entry(1, "plain", "", t0))

	require.NoError(t, err)
	assert.Empty(t, doc.User)
	assert.Empty(t, doc.Tag)
	assert.Empty(t, doc.Comment)
}

func TestProject_NotProcessed(t *testing.T) {
	for _, state := range []media.State{media.StateUnprocessed, media.StateProcessing, media.StateFailed} {
		t.Run(string(state), func(t *testing.T) {
			e := entry(3, "x", "y", t0)
			e.State = state

			doc, err := Project(e)

			assert.Nil(t, doc)
			assert.ErrorIs(t, err, errors.ErrNotProcessed)
		})
	}
}

func TestProject_Nil(t *testing.T) {
	_, err := Project(nil)
	assert.Error(t, err)
}
