package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/labsearch/internal/embed"
	"github.com/Aman-CERP/labsearch/internal/store"
	"github.com/Aman-CERP/labsearch/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool
	var noColor bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health",
		Long: `Show how many items are indexed per content type, when the index was
last updated, which provider built it and whether the configured provider
is ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput, noColor || ui.DetectNoColor())
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput, noColor bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	info, err := collectStatus(ctx, a)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// collectStatus gathers the store metadata and provider readiness.
func collectStatus(ctx context.Context, a *app) (ui.StatusInfo, error) {
	meta, err := a.store.Metadata(ctx)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	recorded, err := a.store.GetState(ctx, store.StateKeyProvider)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	runID, err := a.store.GetState(ctx, store.StateKeyLastRunID)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	lastIndexed, err := a.store.GetState(ctx, store.StateKeyLastIndexed)
	if err != nil {
		return ui.StatusInfo{}, err
	}

	configured := a.registry.DefaultID()
	info := ui.StatusInfo{
		Workspace:      a.cfg.Workspace.Path,
		DataDir:        a.cfg.Workspace.DataDir,
		TotalRecords:   meta.TotalCount,
		CountsByType:   make(map[string]int, len(meta.CountsByType)),
		LastRunID:      runID,
		Provider:       recorded,
		Configured:     string(configured),
		ProviderStatus: embed.Readiness(a.registry, configured, a.apiKey(configured)),
	}
	for ct, n := range meta.CountsByType {
		info.CountsByType[string(ct)] = n
	}
	if t, err := time.Parse(time.RFC3339Nano, lastIndexed); err == nil {
		info.LastIndexed = t
	} else {
		info.LastIndexed = meta.LastUpdated
	}
	if fi, err := os.Stat(a.cfg.DBPath()); err == nil {
		info.DBSize = fi.Size()
	}
	return info, nil
}
