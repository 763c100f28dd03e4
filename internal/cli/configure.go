package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davin/easel/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a starter configuration file",
	Long: `Write a starter configuration file with default settings. Edit the
file afterwards to add AI provider credentials before starting the daemon.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	cfg := config.DefaultConfig()
	cfg.AI.Profiles = []config.AIProfile{
		{ID: "primary", Provider: "anthropic", APIKey: "sk-...", Priority: 1},
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	path, err := loader.Path()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to: %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "Add your API key, then start Easel with: easel serve")
	return nil
}
