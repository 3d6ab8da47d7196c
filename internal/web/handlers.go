package web

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Aman-CERP/indexedsearch/internal/async"
	"github.com/Aman-CERP/indexedsearch/internal/config"
	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/store"
	"github.com/Aman-CERP/indexedsearch/pkg/version"
)

// SearchResponse is the /search payload.
type SearchResponse struct {
	Query     string   `json:"query"`
	IDs       []uint64 `json:"ids"`
	Total     int      `json:"total"`
	Page      int      `json:"page"`
	PerPage   int      `json:"per_page"`
	LinkStyle string   `json:"link_style"`
	ShowForm  bool     `json:"show_form"`
	Error     string   `json:"error,omitempty"`
}

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status    string                `json:"status"`
	Ready     bool                  `json:"ready"`
	Version   string                `json:"version"`
	Reconcile *async.StatusSnapshot `json:"reconcile,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	st := s.Settings()
	q := r.URL.Query()
	resp := SearchResponse{
		Query:     q.Get("q"),
		IDs:       []uint64{},
		Page:      intParam(q.Get("page"), 1, 1, 0),
		PerPage:   intParam(q.Get("per_page"), DefaultPerPage, 1, MaxPerPage),
		LinkStyle: st.LinkStyle,
		ShowForm:  config.SearchConfig{LinkStyle: st.LinkStyle}.ShowForm(),
	}

	ids, err := s.search.SearchResults(r.Context(), resp.Query)
	if err != nil {
		switch {
		case stderrors.Is(err, errors.ErrQueryParse):
			// Syntax errors are shown to the user, not treated as failures.
			resp.Error = err.Error()
			writeJSON(w, s.logger, http.StatusOK, resp)
		case stderrors.Is(err, errors.ErrQueryTooLong):
			resp.Error = err.Error()
			writeJSON(w, s.logger, http.StatusBadRequest, resp)
		case stderrors.Is(err, errors.ErrIndexUnavailable):
			writeJSONError(w, "search index unavailable", http.StatusServiceUnavailable)
		default:
			s.logger.LogAttrs(r.Context(), slog.LevelError, "search_request_failed", errors.LogAttrs(err)...)
			writeJSONError(w, "search failed", http.StatusInternalServerError)
		}
		return
	}

	resp.Total = len(ids)
	resp.IDs = paginate(ids, resp.Page, resp.PerPage)
	writeJSON(w, s.logger, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeJSONError(w, "search index unavailable", http.StatusServiceUnavailable)
		return
	}
	stats, err := store.GetStats(r.Context(), s.index)
	if err != nil {
		s.logger.Error("stats_failed", slog.String("error", err.Error()))
		writeJSONError(w, "failed to read index statistics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, stats)
}

// handleHealth reports ready once the startup reconciliation has succeeded.
// Until then it answers 503 so that load balancers hold traffic.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Ready:   true,
		Version: version.Short(),
	}
	code := http.StatusOK
	if s.status != nil {
		snap := s.status.Snapshot()
		resp.Reconcile = &snap
		switch {
		case snap.Runs == 0:
			resp.Status, resp.Ready, code = "starting", false, http.StatusServiceUnavailable
		case snap.ErrorMessage != "":
			resp.Status = "degraded"
		}
	}
	writeJSON(w, s.logger, code, resp)
}

func paginate(ids []uint64, page, perPage int) []uint64 {
	// Compare page numbers before multiplying so huge pages cannot overflow.
	if len(ids) == 0 || page < 1 || perPage < 1 || page-1 > (len(ids)-1)/perPage {
		return []uint64{}
	}
	start := (page - 1) * perPage
	end := start + perPage
	if end > len(ids) {
		end = len(ids)
	}
	return ids[start:end]
}

// intParam parses a positive integer, falling back to def when the value is
// missing or below lo. An hi of zero means unbounded.
func intParam(raw string, def, lo, hi int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo {
		return def
	}
	if hi > 0 && n > hi {
		return hi
	}
	return n
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("json_encode_failed", slog.String("error", err.Error()))
	}
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
