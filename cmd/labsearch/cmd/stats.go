package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/labsearch/internal/output"
	"github.com/Aman-CERP/labsearch/internal/telemetry"
)

const statsTopN = 10

func newStatsCmd() *cobra.Command {
	var jsonOutput bool
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show local query statistics",
		Long: `Display statistics about searches run against this workspace:
  - How queries were scoped (all, by type, by project)
  - Latency distribution
  - Most frequent query terms
  - Recent queries that found nothing

Statistics are stored in the index database and never leave the machine.
Disable collection with search.query_stats: false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
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

			statsStore, err := telemetry.NewSQLiteStore(a.store.DB())
			if err != nil {
				return err
			}
			report, err := statsStore.LoadReport(days, time.Now(), statsTopN)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			renderStats(output.New(cmd.OutOrStdout()), report, cfg.Search.QueryStats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")

	return cmd
}

func renderStats(out *output.Writer, r *telemetry.Report, enabled bool) {
	out.Header(fmt.Sprintf("Query statistics (%s to %s)", r.From, r.To))
	if !enabled {
		out.Warning("Collection is disabled (search.query_stats)")
	}
	if r.TotalQueries == 0 {
		out.Info("No queries recorded")
		return
	}

	out.Field("Queries", 12, fmt.Sprintf("%d", r.TotalQueries))
	for _, scope := range []telemetry.Scope{telemetry.ScopeAll, telemetry.ScopeType, telemetry.ScopeProject, telemetry.ScopeBoth} {
		if n := r.ScopeCounts[scope]; n > 0 {
			out.Field("  "+string(scope), 12, fmt.Sprintf("%d (%.0f%%)", n, percent(n, r.TotalQueries)))
		}
	}

	out.Newline()
	out.Header("Latency")
	labels := map[telemetry.LatencyBucket]string{
		telemetry.BucketP50:   "<50ms",
		telemetry.BucketP200:  "50-200ms",
		telemetry.BucketP1000: "200ms-1s",
		telemetry.BucketSlow:  ">=1s",
	}
	for _, b := range telemetry.Buckets {
		out.Field(labels[b], 12, fmt.Sprintf("%d", r.LatencyDistribution[b]))
	}

	if len(r.TopTerms) > 0 {
		out.Newline()
		out.Header("Top terms")
		terms := make([]string, len(r.TopTerms))
		for i, tc := range r.TopTerms {
			terms[i] = fmt.Sprintf("%s (%d)", tc.Term, tc.Count)
		}
		out.Info(strings.Join(terms, ", "))
	}

	if len(r.ZeroResultQueries) > 0 {
		out.Newline()
		out.Header("Recent queries with no results")
		for _, q := range r.ZeroResultQueries {
			out.Infof("%q", q)
		}
	}
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
