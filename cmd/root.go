package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pimworks/golden-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "golden-cli",
	Short: "Golden-record fusion engine for the PIM catalog",
	Long:  "Triages similarity matches, fuses multi-source attribute votes into golden records, scores record quality, and coordinates bulk-ingestion retries.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
