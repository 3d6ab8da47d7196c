package cmd

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexedsearch/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	format string // "text", "json"
}

// searchHit is one result as printed by the CLI.
type searchHit struct {
	ID    uint64   `json:"id"`
	Title string   `json:"title,omitempty"`
	User  string   `json:"user,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

type searchReport struct {
	Query   string      `json:"query"`
	Total   int         `json:"total"`
	Results []searchHit `json:"results"`
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed media entries",
		Long: `Search titles, descriptions, tags and comments of indexed media entries.

Terms are matched as whole words. Quoted "phrases", AND, OR, NOT, -term
exclusion and field:term (title, description, tag, comment, user) are
supported.

Examples:
  indexedsearch search cat
  indexedsearch search '"black cat" -dog'
  indexedsearch search tag:holiday --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum number of results to print")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())

	return withApp(ctx, func(a *app) error {
		ids, err := a.search.SearchResults(ctx, query)
		if err != nil {
			return err
		}

		report := searchReport{Query: query, Total: len(ids), Results: []searchHit{}}
		if opts.limit > 0 && len(ids) > opts.limit {
			ids = ids[:opts.limit]
		}
		for _, id := range ids {
			report.Results = append(report.Results, a.describe(ctx, id))
		}
		slog.Debug("cli_search_complete", slog.String("query", query), slog.Int("total", report.Total))

		if format == output.FormatJSON {
			return out.JSON(report)
		}
		if report.Total == 0 {
			out.Statusf("", "No media found for %q", query)
			return nil
		}
		rows := make([][]string, 0, len(report.Results))
		for _, h := range report.Results {
			rows = append(rows, []string{strconv.FormatUint(h.ID, 10), h.Title, h.User, strings.Join(h.Tags, " ")})
		}
		out.Table([]string{"ID", "TITLE", "USER", "TAGS"}, rows)
		if report.Total > len(report.Results) {
			out.Newline()
			out.Statusf("", "Showing %d of %d results", len(report.Results), report.Total)
		}
		return nil
	})
}

// describe looks up the entry behind a search hit. A failed lookup still
// yields the id.
func (a *app) describe(ctx context.Context, id uint64) searchHit {
	h := searchHit{ID: id}
	e, err := a.records.FindByID(ctx, id)
	if err != nil || e == nil {
		return h
	}
	h.Title = e.Title
	if e.Actor != nil {
		h.User = e.Actor.Username
	}
	for _, t := range e.Tags {
		h.Tags = append(h.Tags, t.Name)
	}
	return h
}
