package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dossier/internal/config"
	"dossier/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dossier",
	Short: "dossier - OSINT investigation pipeline",
	Long: `dossier answers an open-source-intelligence query about a named subject.

It gathers evidence with retrieval tools, separates namesakes into distinct
profiles, drafts a brief and releases it only after an adversarial review.
Every step is streamed as it happens.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := logging.Initialize(cfg.Logging.ToLogging()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Boot("dossier starting: command=%s config=%s", cmd.Name(), configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "dossier.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(investigateCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
