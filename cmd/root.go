package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/telco-assist/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "telco-assist",
	Short: "Telecom customer-support chat backend",
	Long:  "Crawls the provider website into a searchable corpus, then answers customer questions over HTTP using keyword retrieval, an LLM and a nearest-branch locator.",
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
