package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "casecast",
	Short: "COVID-19 case pipeline and short-term forecaster",
	Long:  "Fetches cumulative case tables, resolves countries, forecasts the next days with a weighted log-linear fit, and serves the result to the dashboard.",
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
