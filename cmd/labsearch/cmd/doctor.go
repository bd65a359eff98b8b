package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/labsearch/internal/config"
	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/embed"
	"github.com/Aman-CERP/labsearch/internal/output"
	"github.com/Aman-CERP/labsearch/internal/preflight"
)

// doctorJSON is the --json output of doctor.
type doctorJSON struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the workspace can be indexed and searched",
		Long: `Run environment checks: the workspace export parses, the data directory
is writable with enough free space, the open file limit is sufficient and
the configured embedding provider is ready.

Exits with an error when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			results := runPreflight(cmd.Context(), cfg)
			status := preflight.SummaryStatus(results)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(doctorJSON{Status: status, Checks: results}); err != nil {
					return err
				}
			} else {
				renderDoctor(output.New(cmd.OutOrStdout()), results, status, verbose)
			}

			if preflight.HasCriticalFailures(results) {
				_ = preflight.ClearMarker(cfg.Workspace.DataDir)
				return fmt.Errorf("%d required check(s) failed", countCritical(results))
			}
			if err := preflight.MarkPassed(cfg.Workspace.DataDir, cfg.Embeddings.Provider); err != nil {
				slog.Warn("preflight_marker_failed", slog.String("error", err.Error()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for every check")

	return cmd
}

// runPreflight runs the environment checks for cfg.
func runPreflight(ctx context.Context, cfg *config.Config) []preflight.CheckResult {
	registry := embed.RegistryFromConfig(cfg)
	id := registry.DefaultID()

	return preflight.New().RunAll(ctx, preflight.Target{
		Source:         content.NewFileSource(cfg.Workspace.Path),
		WorkspacePath:  cfg.Workspace.Path,
		DataDir:        cfg.Workspace.DataDir,
		Provider:       string(id),
		ProviderStatus: embed.Readiness(registry, id, embed.ResolveAPIKey(id, cfg)),
	})
}

// preflightOnce runs the checks when the data directory has no marker
// for the configured provider, and logs the outcome. Failures are logged,
// not returned: a server should still start and report them through
// index_status.
func preflightOnce(ctx context.Context, cfg *config.Config) {
	if !preflight.NeedsCheck(cfg.Workspace.DataDir, cfg.Embeddings.Provider) {
		return
	}
	start := time.Now()
	results := runPreflight(ctx, cfg)
	for _, r := range results {
		if r.Status == preflight.StatusPass {
			continue
		}
		slog.Warn("preflight_check",
			slog.String("check", r.Name),
			slog.String("status", r.Status.String()),
			slog.String("message", r.Message))
	}
	slog.Info("preflight_complete",
		slog.String("status", preflight.SummaryStatus(results)),
		slog.Duration("duration", time.Since(start)))

	if !preflight.HasCriticalFailures(results) {
		if err := preflight.MarkPassed(cfg.Workspace.DataDir, cfg.Embeddings.Provider); err != nil {
			slog.Warn("preflight_marker_failed", slog.String("error", err.Error()))
		}
	}
}

func renderDoctor(out *output.Writer, results []preflight.CheckResult, status string, verbose bool) {
	out.Header("labsearch doctor")
	for _, r := range results {
		line := fmt.Sprintf("%-18s %s", r.Name, r.Message)
		switch {
		case r.Status == preflight.StatusPass:
			out.Success(line)
		case r.IsCritical():
			out.Error(line)
		default:
			out.Warning(line)
		}
		if r.Details != "" && (verbose || r.Status != preflight.StatusPass) {
			out.Info(out.Dim(r.Details))
		}
	}
	out.Newline()
	out.Infof("Status: %s", strings.ToUpper(status))
}

func countCritical(results []preflight.CheckResult) int {
	n := 0
	for _, r := range results {
		if r.IsCritical() {
			n++
		}
	}
	return n
}
