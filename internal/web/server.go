// Package web serves the search index over HTTP.
//
// Routes:
//
//	GET /search?q=...&page=N&per_page=M   matching entry ids as JSON
//	GET /stats                            index statistics
//	GET /healthz                          liveness and reconcile status
//	GET /metrics                          Prometheus metrics
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/indexedsearch/internal/async"
	"github.com/Aman-CERP/indexedsearch/internal/config"
	"github.com/Aman-CERP/indexedsearch/internal/store"
)

const (
	// DefaultPerPage is the page size when the request gives none.
	DefaultPerPage = 20
	// MaxPerPage caps per_page.
	MaxPerPage = 100

	shutdownTimeout = 10 * time.Second
)

// Searcher answers free-text queries with entry ids.
type Searcher interface {
	SearchResults(ctx context.Context, raw string) ([]uint64, error)
}

// Settings are the request-time options that can change while serving.
type Settings struct {
	UsersOnly  bool
	LinkStyle  string
	UserHeader string
}

// SettingsFrom extracts Settings from a loaded configuration.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		UsersOnly:  cfg.Search.UsersOnly,
		LinkStyle:  config.NormalizeLinkStyle(cfg.Search.LinkStyle),
		UserHeader: cfg.Server.UserHeader,
	}
}

// Server is the HTTP query surface.
type Server struct {
	search   Searcher
	index    store.SearchIndex
	status   *async.Status
	logger   *slog.Logger
	settings atomic.Pointer[Settings]
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStatus reports scheduler status from /healthz.
func WithStatus(st *async.Status) Option {
	return func(s *Server) { s.status = st }
}

// NewServer creates a server. idx backs /stats and may be nil.
func NewServer(search Searcher, idx store.SearchIndex, settings Settings, opts ...Option) *Server {
	s := &Server{
		search: search,
		index:  idx,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Apply(settings)
	return s
}

// Apply replaces the request-time settings. Requests already running keep
// the settings they started with.
func (s *Server) Apply(settings Settings) {
	settings.LinkStyle = config.NormalizeLinkStyle(settings.LinkStyle)
	if settings.UserHeader == "" {
		settings.UserHeader = "X-Remote-User"
	}
	s.settings.Store(&settings)
	s.logger.Info("web_settings_applied",
		slog.Bool("users_only", settings.UsersOnly),
		slog.String("link_style", settings.LinkStyle))
}

// Settings returns the current request-time settings.
func (s *Server) Settings() Settings {
	return *s.settings.Load()
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests, recordMetrics(DefaultSkipPaths))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.requireUser)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "not found", http.StatusNotFound)
	})
	return r
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_server_started", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http_server_stopping")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
