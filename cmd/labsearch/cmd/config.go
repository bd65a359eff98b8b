package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/labsearch/internal/config"
	"github.com/Aman-CERP/labsearch/internal/embed"
	"github.com/Aman-CERP/labsearch/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace configuration",
		Long: `Manage the workspace configuration file (.labsearch.yaml).

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/labsearch/config.yaml)
  3. Workspace config (.labsearch.yaml next to the workspace)
  4. Environment variables (LABSEARCH_*)
  5. Command-line flags`,
		Example: `  # Write a config using the offline provider
  labsearch config init --provider static

  # Show the effective configuration
  labsearch config show`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	var provider string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .labsearch.yaml with the defaults",
		Long: `Create .labsearch.yaml in the workspace directory with the built-in
defaults. An existing file is kept unless --force is given, in which case
it is backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			dir, _, err := configDir()
			if err != nil {
				return err
			}
			path := filepath.Join(dir, config.FileName)

			if _, err := os.Stat(path); err == nil {
				if !force {
					out.Warningf("%s already exists (use --force to overwrite)", path)
					return nil
				}
				backup, err := config.Backup(path)
				if err != nil {
					return err
				}
				if backup != "" {
					out.Statusf("", "Backed up to %s", backup)
				}
			}

			cfg := config.NewConfig()
			if provider != "" {
				cfg.Embeddings.Provider = string(embed.ParseProviderID(provider))
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.WriteYAML(path); err != nil {
				return err
			}

			out.Successf("Created %s", path)
			if embed.NeedsAPIKey(embed.ParseProviderID(cfg.Embeddings.Provider)) {
				out.Info("Set the provider's API key in the environment before indexing.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file after backing it up")
	cmd.Flags().StringVar(&provider, "provider", "", "Embedding provider to configure")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  "Show the configuration after merging every source. API keys are never printed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			redacted := *cfg
			redacted.Embeddings.OpenAIAPIKey = ""
			redacted.Embeddings.GeminiAPIKey = ""
			redacted.Embeddings.AnthropicAPIKey = ""
			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
