package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/labsearch/internal/index"
	"github.com/Aman-CERP/labsearch/internal/output"
)

// maxListedIssues caps the issues printed per type in text output.
const maxListedIssues = 10

func newCheckCmd() *cobra.Command {
	var repair bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the index with the workspace",
		Long: `Compare the stored embeddings with the current workspace and report:

  orphan            records whose item was deleted
  missing           items never embedded
  stale             items changed since they were embedded
  foreign_provider  records from a provider other than the store's
  dimensions        records whose vector length differs from the rest

--repair deletes orphan, foreign_provider and dimensions records. Missing
and stale items are fixed by 'labsearch index'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			checker := index.NewConsistencyChecker(a.store, a.source)
			result, err := checker.Check(cmd.Context())
			if err != nil {
				return err
			}

			deleted := 0
			if repair && !result.Consistent() {
				deleted, err = checker.Repair(cmd.Context(), result.Issues)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					*index.CheckResult
					Repaired int `json:"repaired"`
				}{result, deleted})
			}
			writeCheckText(output.New(cmd.OutOrStdout()), result, repair, deleted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Delete records that cannot serve searches")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func writeCheckText(out *output.Writer, result *index.CheckResult, repair bool, deleted int) {
	if result.Consistent() {
		out.Successf("Index matches the workspace (%d items, %d records)", result.Items, result.Records)
		return
	}

	out.Warningf("%d issue(s) across %d items and %d records", len(result.Issues), result.Items, result.Records)
	listed := make(map[index.IssueType]int)
	for _, is := range result.Issues {
		listed[is.Type]++
		if listed[is.Type] > maxListedIssues {
			continue
		}
		line := fmt.Sprintf("%-16s %s", is.Type, is.ID)
		if is.Details != "" {
			line += "  " + out.Dim(is.Details)
		}
		out.Info(line)
	}
	for t, n := range result.Counts() {
		if n > maxListedIssues {
			out.Infof("%-16s ... and %d more", t, n-maxListedIssues)
		}
	}

	out.Newline()
	if repair {
		out.Successf("Deleted %d %s", deleted, recordsWord(deleted))
	}
	counts := result.Counts()
	if counts[index.IssueMissing]+counts[index.IssueStale] > 0 {
		out.Info("Run 'labsearch index' to embed missing and changed items.")
	}
	if !repair && counts[index.IssueOrphan]+counts[index.IssueForeignProvider]+counts[index.IssueDimensions] > 0 {
		out.Info("Run 'labsearch check --repair' to delete unusable records.")
	}
}
