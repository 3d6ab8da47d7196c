package store

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
)

// brokenIndex fails searches as if the files vanished underneath it.
type brokenIndex struct {
	SearchIndex
}

func (b *brokenIndex) Search(ctx context.Context, q string, fields []string, limit int) ([]uint64, error) {
	return nil, errors.Unavailable("index files missing", nil)
}

func TestReopening_ReopensAfterUnavailable(t *testing.T) {
	// Given: an opener whose first index breaks on search
	opens := 0
	open := func() (SearchIndex, bool, error) {
		opens++
		idx, created, err := OpenOrCreate("", Options{Backend: BackendBleve})
		if err != nil {
			return nil, false, err
		}
		if opens == 1 {
			return &brokenIndex{SearchIndex: idx}, created, nil
		}
		return idx, created, nil
	}
	r, created, err := NewReopening(open, nil)
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, created)

	ctx := context.Background()
	require.NoError(t, r.Upsert(ctx, &Document{ID: 1, Title: "mediaA", Time: t0}, nil))
	genBefore := r.Generation()

	// When: a search reports the index unavailable
	_, err = r.Search(ctx, "mediaA", nil, 10)
	require.ErrorIs(t, err, errors.ErrIndexUnavailable)

	// Then: the next call runs the opener again
	ids, err := r.Search(ctx, "mediaA", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, ids, "a fresh in-memory index starts empty")
	assert.Equal(t, 2, opens)
	assert.Greater(t, r.Generation(), genBefore)
	assert.Equal(t, BackendBleve, r.Backend())
}

func TestReopening_OtherErrorsDoNotReopen(t *testing.T) {
	opens := 0
	r, _, err := NewReopening(func() (SearchIndex, bool, error) {
		opens++
		return OpenOrCreate("", Options{Backend: BackendSQLite})
	}, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Search(context.Background(), "(", nil, 10)
	require.ErrorIs(t, err, errors.ErrQueryParse)

	_, err = r.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, opens)
}

func TestReopening_StartupFailureIsReturned(t *testing.T) {
	boom := stderrors.New("boom")
	_, _, err := NewReopening(func() (SearchIndex, bool, error) {
		return nil, false, errors.Unavailable("cannot open", boom)
	}, nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, errors.ErrIndexUnavailable)
}

func TestReopening_Close(t *testing.T) {
	r, _, err := NewReopening(func() (SearchIndex, bool, error) {
		return OpenOrCreate("", Options{})
	}, nil)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = r.Count(context.Background())
	assert.ErrorIs(t, err, errors.ErrIndexClosed)
}
