package mcp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/indexedsearch/internal/async"
	apperrors "github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/media"
	"github.com/Aman-CERP/indexedsearch/internal/store"
	"github.com/Aman-CERP/indexedsearch/pkg/version"
)

const (
	serverName = "indexedsearch"

	defaultLimit = 10
	maxLimit     = 100
)

// Searcher answers free-text queries with entry ids.
type Searcher interface {
	SearchResults(ctx context.Context, raw string) ([]uint64, error)
}

// Server bridges MCP clients with the media search index.
type Server struct {
	mcp     *mcp.Server
	search  Searcher
	index   store.SearchIndex
	records media.Source
	status  *async.Status
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStatus reports scheduler status from index_status.
func WithStatus(st *async.Status) Option {
	return func(s *Server) { s.status = st }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates an MCP server. records may be nil, in which case
// results carry ids only and the media resource is not registered.
func NewServer(search Searcher, idx store.SearchIndex, records media.Source, opts ...Option) (*Server, error) {
	if search == nil {
		return nil, errors.New("search service is required")
	}
	if idx == nil {
		return nil, errors.New("search index is required")
	}

	s := &Server{
		search:  search,
		index:   idx,
		records: records,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version.Version,
	}, nil)
	s.registerTools()
	if records != nil {
		s.registerResources()
	}
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search_media",
		Description: "Full-text search over media entries: titles, descriptions, tags and comments. " +
			"Returns matching entries in relevance order. " +
			"Supports quoted phrases, AND/OR/NOT, -term exclusion and field:term (title, description, tag, comment, user).",
	}, s.handleSearchMedia)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report the search index backend, document count and the state of the last reconciliation with the record store.",
	}, s.handleIndexStatus)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 2))
}

func (s *Server) handleSearchMedia(ctx context.Context, _ *mcp.CallToolRequest, input SearchMediaInput) (
	*mcp.CallToolResult,
	SearchMediaOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()
	out := SearchMediaOutput{Query: input.Query, Results: []MediaResult{}}

	ids, err := s.search.SearchResults(ctx, input.Query)
	if err != nil {
		if errors.Is(err, apperrors.ErrQueryParse) {
			// The client sees the message; a bad query is not a tool failure.
			out.Error = err.Error()
			return textResult(FormatSearchResults(out)), out, nil
		}
		s.logger.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, SearchMediaOutput{}, MapError(err)
	}

	limit := clampLimit(input.Limit, defaultLimit, 1, maxLimit)
	out.Total = len(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		out.Results = append(out.Results, s.describe(ctx, id))
	}
	out.Count = len(out.Results)

	s.logger.Info("mcp_search_complete",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("results", out.Count),
		slog.Duration("duration", time.Since(start)))
	return textResult(FormatSearchResults(out)), out, nil
}

// describe fills in entry details from the record store. Lookup failures
// degrade to an id-only result.
func (s *Server) describe(ctx context.Context, id uint64) MediaResult {
	r := MediaResult{ID: id, URI: mediaURI(id)}
	if s.records == nil {
		return r
	}
	e, err := s.records.FindByID(ctx, id)
	if err != nil || e == nil {
		if err != nil {
			s.logger.Warn("mcp_describe_failed", slog.Uint64("id", id), slog.String("error", err.Error()))
		}
		return r
	}
	r.Title = e.Title
	r.Description = e.Description
	for _, t := range e.Tags {
		r.Tags = append(r.Tags, t.Name)
	}
	if e.Actor != nil {
		r.User = e.Actor.Username
	}
	return r
}

type counter interface {
	Count(ctx context.Context) (int, error)
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	stats, err := store.GetStats(ctx, s.index)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}
	out := IndexStatusOutput{Index: *stats}
	if c, ok := s.records.(counter); ok {
		if n, err := c.Count(ctx); err == nil {
			out.Records = n
		}
	}
	if s.status != nil {
		out.Reconcile = reconcileInfo(s.status.Snapshot())
	}
	return nil, out, nil
}

// Serve runs the server over stdio until ctx is canceled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
