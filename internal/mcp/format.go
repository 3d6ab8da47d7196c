package mcp

import (
	"fmt"
	"strings"
)

// FormatSearchResults renders search_media output as markdown.
func FormatSearchResults(out SearchMediaOutput) string {
	var sb strings.Builder

	if out.Error != "" {
		fmt.Fprintf(&sb, "## Invalid query\n\n`%s`\n\n%s\n", out.Query, out.Error)
		return sb.String()
	}
	if len(out.Results) == 0 {
		fmt.Fprintf(&sb, "No media found for `%s`.\n", out.Query)
		return sb.String()
	}

	fmt.Fprintf(&sb, "## %d of %d results for `%s`\n\n", out.Count, out.Total, out.Query)
	for i, r := range out.Results {
		title := r.Title
		if title == "" {
			title = fmt.Sprintf("media %d", r.ID)
		}
		fmt.Fprintf(&sb, "%d. **%s** (id %d)\n", i+1, title, r.ID)
		if r.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", truncate(r.Description, 200))
		}
		if len(r.Tags) > 0 {
			fmt.Fprintf(&sb, "   tags: %s\n", strings.Join(r.Tags, ", "))
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, lo, hi int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < lo {
		return lo
	}
	if limit > hi {
		return hi
	}
	return limit
}
