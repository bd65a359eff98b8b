package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/output"
	"github.com/Aman-CERP/labsearch/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	types     []string
	project   string
	limit     int
	threshold float64
	format    string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the workspace by meaning",
		Long: `Search the indexed workspace with a natural-language query.

Results are ranked by cosine similarity between the query embedding and
each item's embedding. Items scoring below the threshold are dropped.

Examples:
  labsearch search "guide RNA design for knockout screens"
  labsearch search "antibody dilution" --type protocol --type result
  labsearch search "aims" --project p-42 --limit 5
  labsearch search "western blot" --threshold 0.5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			var threshold *float64
			if cmd.Flags().Changed("threshold") {
				threshold = &opts.threshold
			}
			return runSearch(cmd.Context(), cmd, query, opts, threshold)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.types, "type", "t", nil,
		"Restrict to a content type (repeatable): "+strings.Join(typeNames(), ", "))
	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Restrict to one project id")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default: from config)")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Minimum similarity in [-1, 1] (default: from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func typeNames() []string {
	names := make([]string, len(content.AllTypes))
	for i, t := range content.AllTypes {
		names[i] = string(t)
	}
	return names
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions, threshold *float64) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (use text or json)", opts.format)
	}
	if opts.limit < 0 {
		return fmt.Errorf("limit must be positive")
	}

	searchOpts := search.Options{
		ProjectID: strings.TrimSpace(opts.project),
		Limit:     opts.limit,
		Threshold: threshold,
	}
	for _, raw := range opts.types {
		ct, err := content.ParseContentType(raw)
		if err != nil {
			return err
		}
		searchOpts.ContentTypes = append(searchOpts.ContentTypes, ct)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	start := time.Now()
	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	results, err := a.searcher.Search(ctx, query, searchOpts)
	if err != nil {
		return err
	}
	slog.Info("search_complete",
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	if opts.format == "json" {
		return writeSearchJSON(cmd, query, results, time.Since(start))
	}
	writeSearchText(output.New(cmd.OutOrStdout()), query, results)
	return nil
}

// searchJSON is the --format json document.
type searchJSON struct {
	Query      string          `json:"query"`
	Count      int             `json:"count"`
	DurationMS int64           `json:"duration_ms"`
	Results    []search.Result `json:"results"`
}

func writeSearchJSON(cmd *cobra.Command, query string, results []search.Result, d time.Duration) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(searchJSON{
		Query:      query,
		Count:      len(results),
		DurationMS: d.Milliseconds(),
		Results:    results,
	})
}

func writeSearchText(out *output.Writer, query string, results []search.Result) {
	if len(results) == 0 {
		out.Warningf("No results for %q", query)
		return
	}

	out.Header(fmt.Sprintf("%d result(s) for %q", len(results), query))
	out.Newline()
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.ContentID
		}
		out.Statusf(fmt.Sprintf("%2d.", i+1), "%s %s", title, out.Dim(fmt.Sprintf("(%.3f)", r.Score)))
		out.Infof("   %s in %s  %s", r.ContentType, r.ProjectTitle, out.Dim(r.ID))
	}
}
