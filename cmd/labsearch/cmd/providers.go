package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/labsearch/internal/embed"
	"github.com/Aman-CERP/labsearch/internal/output"
)

// providerInfo is one row of `labsearch providers`.
type providerInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status"`
	Default    bool   `json:"default"`
}

func newProvidersCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List embedding providers and whether they are ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry := embed.RegistryFromConfig(cfg)

			var infos []providerInfo
			for _, id := range registry.IDs() {
				p, err := registry.Get(id)
				if err != nil {
					return err
				}
				infos = append(infos, providerInfo{
					ID:         string(id),
					Name:       p.Name(),
					Dimensions: p.Dimensions(),
					Status:     embed.Readiness(registry, id, embed.ResolveAPIKey(id, cfg)),
					Default:    id == registry.DefaultID(),
				})
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			out := output.New(cmd.OutOrStdout())
			for _, info := range infos {
				mark := " "
				if info.Default {
					mark = "*"
				}
				out.Statusf(mark, "%-8s %-28s %s", info.ID, info.Name, info.Status)
			}
			out.Newline()
			out.Info("* configured default (embeddings.provider)")
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
