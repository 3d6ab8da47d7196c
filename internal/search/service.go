// Package search answers free-text queries against the media index.
package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/metrics"
	"github.com/Aman-CERP/indexedsearch/internal/store"
)

// Default service configuration values.
const (
	DefaultMaxResults     = store.DefaultSearchLimit
	DefaultMaxQueryLength = 1024
	DefaultCacheSize      = 256
)

// Config holds configuration for the query service.
type Config struct {
	// Fields searched by SearchResults (default: title, description, tag, comment).
	Fields []string

	// MaxResults caps the number of ids returned (default: 100).
	MaxResults int

	// MaxQueryLength is the longest accepted query in characters (default: 1024).
	MaxQueryLength int

	// CacheSize is the LRU size for query results. Zero uses the default,
	// a negative value disables caching.
	CacheSize int
}

// DefaultConfig returns sensible defaults for the service.
func DefaultConfig() Config {
	return Config{
		Fields:         store.DefaultSearchFields,
		MaxResults:     DefaultMaxResults,
		MaxQueryLength: DefaultMaxQueryLength,
		CacheSize:      DefaultCacheSize,
	}
}

// cacheKey pins a result to the index state it was computed from. Any
// commit bumps the generation, so cached results never outlive a write.
type cacheKey struct {
	gen    uint64
	fields string
	limit  int
	query  string
}

// Service trims and validates raw queries and delegates them to the index.
type Service struct {
	index  store.SearchIndex
	cfg    Config
	cache  *lru.Cache[cacheKey, []uint64]
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a query service over idx.
func NewService(idx store.SearchIndex, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if len(cfg.Fields) == 0 {
		cfg.Fields = def.Fields
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = def.MaxQueryLength
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = def.CacheSize
	}

	s := &Service{
		index:  idx,
		cfg:    cfg,
		logger: slog.Default(),
	}
	if cfg.CacheSize > 0 {
		s.cache, _ = lru.New[cacheKey, []uint64](cfg.CacheSize)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchResults returns the ids of entries matching raw over the default
// fields, in relevance order. A blank query returns no ids without touching
// the index. Syntax errors match errors.ErrQueryParse.
func (s *Service) SearchResults(ctx context.Context, raw string) ([]uint64, error) {
	return s.Search(ctx, raw, nil)
}

// Search is SearchResults over an explicit field set. Nil fields selects
// the configured defaults.
func (s *Service) Search(ctx context.Context, raw string, fields []string) ([]uint64, error) {
	start := time.Now()
	q := strings.TrimSpace(raw)
	if q == "" {
		metrics.SearchesTotal.WithLabelValues("empty").Inc()
		return []uint64{}, nil
	}
	if n := utf8.RuneCountInString(q); n > s.cfg.MaxQueryLength {
		metrics.SearchesTotal.WithLabelValues("invalid").Inc()
		return nil, errors.New(errors.ErrCodeQueryTooLong,
			fmt.Sprintf("query is %d characters, maximum is %d", n, s.cfg.MaxQueryLength), nil)
	}
	if len(fields) == 0 {
		fields = s.cfg.Fields
	}

	key := cacheKey{
		gen:    s.index.Generation(),
		fields: strings.Join(fields, ","),
		limit:  s.cfg.MaxResults,
		query:  q,
	}
	if s.cache != nil {
		if ids, ok := s.cache.Get(key); ok {
			metrics.SearchCacheHits.Inc()
			metrics.SearchesTotal.WithLabelValues("ok").Inc()
			return clone(ids), nil
		}
		metrics.SearchCacheMisses.Inc()
	}

	ids, err := s.index.Search(ctx, q, fields, s.cfg.MaxResults)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if stderrors.Is(err, errors.ErrQueryParse) {
			metrics.SearchesTotal.WithLabelValues("invalid").Inc()
			s.logger.Debug("search_query_invalid", slog.String("query", q), slog.String("error", err.Error()))
			return nil, err
		}
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		s.logger.Error("search_failed", slog.String("query", q), slog.String("error", err.Error()))
		var e *errors.Error
		if stderrors.As(err, &e) {
			return nil, err
		}
		return nil, errors.New(errors.ErrCodeSearchFailed, "search failed", err)
	}

	if s.cache != nil {
		s.cache.Add(key, clone(ids))
	}
	metrics.SearchesTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("search_complete",
		slog.String("query", q),
		slog.Int("results", len(ids)),
		slog.Duration("duration", time.Since(start)))
	return ids, nil
}

// Purge drops every cached result.
func (s *Service) Purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func clone(ids []uint64) []uint64 {
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}
