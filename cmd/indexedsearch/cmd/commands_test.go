package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexedsearch/internal/index"
	"github.com/Aman-CERP/indexedsearch/internal/media"
)

func TestInitCmd_CreatesThenResumes(t *testing.T) {
	// Given: a config pointing at an index dir that does not exist
	env := newTestEnv(t, "")

	// When: init runs twice
	first := env.mustRun(t, "init")
	second := env.mustRun(t, "init")

	// Then: the first run creates the index and the second resumes it
	assert.Contains(t, first, "Created bleve index")
	assert.Contains(t, second, "Resumed bleve index")
	assert.DirExists(t, env.indexDir())
}

func TestInitCmd_WriteConfig(t *testing.T) {
	env := newTestEnv(t, "")
	target := filepath.Join(env.dir, "written.yaml")

	out := env.mustRun(t, "init", "--write-config", target)
	assert.Contains(t, out, "Wrote config")
	assert.FileExists(t, target)

	// A second write keeps a backup of the first
	out = env.mustRun(t, "init", "--write-config", target)
	assert.Contains(t, out, "Previous config saved")
}

func TestMediaLifecycle_KeepsIndexInSync(t *testing.T) {
	env := newTestEnv(t, "")

	// Given: a processed entry and an unprocessed one
	out := env.mustRun(t, "media", "add", "--title", "sunset", "--tag", "beach", "--state", "processed", "--user", "alice")
	assert.Contains(t, out, "Added media 1 (processed)")
	env.mustRun(t, "media", "add", "--title", "draft")

	// Then: only the processed entry is searchable
	r := env.searchJSON(t, "beach")
	assert.Equal(t, []uint64{1}, ids(r))
	assert.Equal(t, "sunset", r.Results[0].Title)
	assert.Equal(t, "alice", r.Results[0].User)
	assert.Empty(t, ids(env.searchJSON(t, "draft")))

	// When: the draft is processed it becomes searchable
	env.mustRun(t, "media", "update", "2", "--state", "processed")
	assert.Equal(t, []uint64{2}, ids(env.searchJSON(t, "draft")))

	// When: a comment is added its text is searchable
	out = env.mustRun(t, "media", "comment", "1", "golden", "hour")
	assert.Contains(t, out, "Added comment")
	assert.Equal(t, []uint64{1}, ids(env.searchJSON(t, "golden")))

	// When: the entry is deleted it disappears from results
	env.mustRun(t, "media", "delete", "1")
	assert.Empty(t, ids(env.searchJSON(t, "beach")))
	assert.Empty(t, ids(env.searchJSON(t, "golden")))

	// Then: the index is consistent with the store
	out = env.mustRun(t, "reconcile", "--check")
	assert.Contains(t, out, "Index is consistent")
}

func TestMediaCmd_Errors(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := env.run(t, "media", "update", "9", "--title", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = env.run(t, "media", "add", "--title", "x", "--state", "finished")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid state")

	_, err = env.run(t, "media", "delete", "abc")
	assert.Error(t, err)

	_, err = env.run(t, "media", "comment", "9", "hello")
	assert.Error(t, err)
}

func TestMediaShowCmd(t *testing.T) {
	env := newTestEnv(t, "")
	env.mustRun(t, "media", "add", "--id", "42", "--title", "harbour", "--tag", "boat", "--tag", "sea")

	out := env.mustRun(t, "media", "show", "42")

	var e media.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &e), out)
	assert.Equal(t, uint64(42), e.ID)
	assert.Equal(t, []media.Tag{{Name: "boat"}, {Name: "sea"}}, e.Tags)
	assert.Equal(t, media.StateUnprocessed, e.State)
}

func TestSearchCmd_TextOutput(t *testing.T) {
	env := newTestEnv(t, "")
	env.mustRun(t, "media", "add", "--title", "sunset", "--tag", "beach", "--state", "processed")

	out := env.mustRun(t, "search", "sunset")
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "sunset")

	out = env.mustRun(t, "search", "nothing")
	assert.Contains(t, out, "No media found")
}

func TestSearchCmd_Errors(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := env.run(t, "search")
	assert.Error(t, err, "query is required")

	_, err = env.run(t, "search", "(cat")
	assert.Error(t, err)

	_, err = env.run(t, "search", "cat", "--format", "xml")
	assert.Error(t, err)
}

func TestSearchCmd_Limit(t *testing.T) {
	env := newTestEnv(t, "")
	for range 3 {
		env.mustRun(t, "media", "add", "--title", "kitten", "--state", "processed")
	}

	out := env.mustRun(t, "search", "kitten", "--limit", "2", "--format", "json")

	var r searchReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 3, r.Total)
	assert.Len(t, r.Results, 2)
}

func TestReconcileCmd_RebuildsLostIndex(t *testing.T) {
	// Given: two processed entries whose index has been lost
	env := newTestEnv(t, "")
	env.mustRun(t, "media", "add", "--title", "one", "--state", "processed")
	env.mustRun(t, "media", "add", "--title", "two", "--state", "processed")
	require.NoError(t, os.RemoveAll(env.indexDir()))

	// When: a check runs it reports both as missing
	out := env.mustRun(t, "reconcile", "--check", "--format", "json")
	var check struct {
		Inconsistencies []struct {
			Type    string `json:"type"`
			MediaID uint64 `json:"media_id"`
		} `json:"inconsistencies"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &check), out)
	require.Len(t, check.Inconsistencies, 2)
	assert.Equal(t, "missing", check.Inconsistencies[0].Type)

	// When: reconcile runs
	out = env.mustRun(t, "reconcile", "--format", "json")

	// Then: both are added and searchable again
	var res index.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 2, res.Missing)
	assert.Equal(t, []uint64{2}, ids(env.searchJSON(t, "two")))

	out = env.mustRun(t, "reconcile")
	assert.Contains(t, out, "Index already consistent")
}

func TestInitCmd_Reconcile(t *testing.T) {
	env := newTestEnv(t, "")
	env.mustRun(t, "media", "add", "--title", "one", "--state", "processed")
	require.NoError(t, os.RemoveAll(env.indexDir()))

	out := env.mustRun(t, "init", "--reconcile")

	assert.Contains(t, out, "Created")
	assert.Contains(t, out, "Reconciled: 1 added")
}

func TestStatsCmd(t *testing.T) {
	env := newTestEnv(t, "")
	env.mustRun(t, "media", "add", "--title", "one", "--state", "processed")
	env.mustRun(t, "media", "add", "--title", "two")

	out := env.mustRun(t, "stats", "--format", "json")

	var r statsReport
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	assert.Equal(t, uint64(1), r.Index.Documents)
	assert.Equal(t, 2, r.Records)
	assert.False(t, r.Interrupted)

	out = env.mustRun(t, "stats")
	assert.Contains(t, out, "documents")
	assert.Contains(t, out, "bleve")
}

func TestAsyncEvents_DrainBeforeExit(t *testing.T) {
	env := newTestEnv(t, "events:\n  async: true\n  workers: 2\n")

	env.mustRun(t, "media", "add", "--title", "queued", "--state", "processed")

	assert.Equal(t, []uint64{1}, ids(env.searchJSON(t, "queued")))
}

func TestSQLiteBackend(t *testing.T) {
	env := newTestEnvWith(t, "  backend: sqlite\n", "")

	out := env.mustRun(t, "init")
	assert.Contains(t, out, "Created sqlite index")

	env.mustRun(t, "media", "add", "--title", "lighthouse", "--state", "processed")
	assert.Equal(t, []uint64{1}, ids(env.searchJSON(t, "lighthouse")))
}

func TestServeCmd_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t, "")
	env.mustRun(t, "media", "add", "--title", "one", "--state", "processed")
	require.NoError(t, os.RemoveAll(env.indexDir()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := env.runContext(ctx, t, "serve", "--addr", "127.0.0.1:0")

	require.NoError(t, err)
	assert.Contains(t, out, "Serving bleve index")

	// The startup pass has repaired the index
	assert.Equal(t, []uint64{1}, ids(env.searchJSON(t, "one")))
}
