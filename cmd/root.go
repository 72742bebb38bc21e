package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperke/client-health/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "client-health",
	Short: "Client account health scoring",
	Long:  "Copies client and campaign reporting data into a local store, scores every active client Red/Yellow/Green, refreshes SmartLead not-contacted counts, and serves the dashboard API.",
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
