package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/labsearch/internal/index"
	"github.com/Aman-CERP/labsearch/internal/search"
)

// FormatSearchResults renders hits as markdown for the client.
func FormatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result%s\n\n", len(results), plural(len(results)))

	for i, r := range results {
		fmt.Fprintf(&sb, "### %d. %s\n\n", i+1, titleOrID(r))
		fmt.Fprintf(&sb, "- **Type:** %s (`%s`)\n", r.ContentType, r.ContentID)
		fmt.Fprintf(&sb, "- **Project:** %s\n", r.ProjectTitle)
		fmt.Fprintf(&sb, "- **Score:** %.3f\n\n", r.Score)
	}
	return sb.String()
}

// FormatReindexReport renders a finished run as markdown.
func FormatReindexReport(rep *index.Report) string {
	var sb strings.Builder
	sb.WriteString("## Reindex Complete\n\n")
	fmt.Fprintf(&sb, "Embedded %d of %d changed items (%d unchanged) with %s in %s.\n",
		rep.Embedded, rep.Embedded+rep.Failed, rep.Skipped, rep.Provider, rep.Duration.Round(1e6))
	if rep.Failed > 0 {
		fmt.Fprintf(&sb, "\n%d item%s failed to embed and will be retried on the next run.\n", rep.Failed, plural(rep.Failed))
	}
	if rep.Cleared > 0 {
		fmt.Fprintf(&sb, "\nThe provider changed, so %d stored vector%s cleared first.\n", rep.Cleared, wasWere(rep.Cleared))
	}
	return sb.String()
}

// FormatIndexingInProgress tells the client that results may be partial.
func FormatIndexingInProgress(st index.Status) string {
	return fmt.Sprintf("Indexing in progress (%d/%d items, trigger: %s). "+
		"Results may be incomplete until it finishes.\n\n", st.Current, st.Total, st.Trigger)
}

func titleOrID(r search.Result) string {
	if r.Title != "" {
		return r.Title
	}
	return r.ID
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func wasWere(n int) string {
	if n == 1 {
		return " was"
	}
	return "s were"
}
