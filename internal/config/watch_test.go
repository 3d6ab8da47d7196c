package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "indexedsearch.yaml")
	writeFile(t, path, "search:\n  link_style: form\n")

	initial, err := LoadFile(path)
	require.NoError(t, err)
	w, err := NewWatcher(path, initial, nil)
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	got := make(chan *Config, 4)
	w.OnChange(func(c *Config) { got <- c })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// When: the file changes
	writeFile(t, path, "search:\n  link_style: button\n  users_only: true\n")

	// Then: subscribers see the reloaded config
	select {
	case c := <-got:
		assert.Equal(t, LinkStyleButton, c.Search.LinkStyle)
		assert.True(t, c.Search.UsersOnly)
		assert.Equal(t, c, w.Current())
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatcher_InvalidChangeKeepsCurrent(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "indexedsearch.yaml")
	writeFile(t, path, "search:\n  max_results: 5\n")
	initial, err := LoadFile(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, initial, nil)
	require.NoError(t, err)
	defer w.fsw.Close()

	// When: the file becomes invalid and a reload runs
	writeFile(t, path, "search:\n  max_results: -1\n")
	w.reload()

	// Then: the previous config stays current
	assert.Equal(t, 5, w.Current().Search.MaxResults)
}
