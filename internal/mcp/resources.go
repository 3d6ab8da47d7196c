package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const mediaURIPrefix = "media://entries/"

func mediaURI(id uint64) string {
	return mediaURIPrefix + strconv.FormatUint(id, 10)
}

// parseMediaURI extracts the id from media://entries/{id}.
func parseMediaURI(uri string) (uint64, bool) {
	rest, ok := strings.CutPrefix(uri, mediaURIPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: mediaURIPrefix + "{id}",
		Name:        "media-entry",
		Description: "A media entry from the record store, with tags and comments",
		MIMEType:    "application/json",
	}, s.handleMediaResource)
}

func (s *Server) handleMediaResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id, ok := parseMediaURI(uri)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	e, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, MapError(err)
	}
	if e == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling media entry: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
