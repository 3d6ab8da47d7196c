package mcp

import (
	"time"

	"github.com/Aman-CERP/indexedsearch/internal/async"
	"github.com/Aman-CERP/indexedsearch/internal/index"
	"github.com/Aman-CERP/indexedsearch/internal/store"
)

// SearchMediaInput defines the input schema for the search_media tool.
type SearchMediaInput struct {
	Query string `json:"query" jsonschema:"free-text query; supports \"phrases\", AND, OR, NOT, -term and field:term"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 100"`
}

// SearchMediaOutput defines the output schema for the search_media tool.
type SearchMediaOutput struct {
	Query   string        `json:"query"`
	Count   int           `json:"count" jsonschema:"number of results returned"`
	Total   int           `json:"total" jsonschema:"number of matching entries before the limit"`
	Results []MediaResult `json:"results" jsonschema:"matching entries in relevance order"`
	Error   string        `json:"error,omitempty" jsonschema:"query syntax error, if any"`
}

// MediaResult is one matching entry. Fields other than ID are filled from
// the record store when it is available.
type MediaResult struct {
	ID          uint64   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	User        string   `json:"user,omitempty"`
	URI         string   `json:"uri" jsonschema:"resource URI for the full entry"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Index     store.Stats    `json:"index"`
	Records   int            `json:"records,omitempty"`
	Reconcile *ReconcileInfo `json:"reconcile,omitempty"`
}

// ReconcileInfo summarises the scheduler state. Times are RFC 3339.
type ReconcileInfo struct {
	State        string        `json:"state" jsonschema:"starting, reconciling, ready or error"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	LastFinished string        `json:"last_finished,omitempty"`
	LastResult   *index.Result `json:"last_result,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

func reconcileInfo(snap async.StatusSnapshot) *ReconcileInfo {
	info := &ReconcileInfo{
		State:        snap.State,
		Runs:         snap.Runs,
		Failures:     snap.Failures,
		LastResult:   snap.LastResult,
		ErrorMessage: snap.ErrorMessage,
	}
	if !snap.LastFinished.IsZero() {
		info.LastFinished = snap.LastFinished.UTC().Format(time.RFC3339)
	}
	return info
}
