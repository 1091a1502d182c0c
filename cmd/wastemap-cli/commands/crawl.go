package commands

import (
	"log/slog"
	"wastemap-backend/lib/configutil"
	"wastemap-backend/lib/serviceutil"
	"wastemap-backend/services/locations/pipeline"

	"github.com/spf13/cobra"
)

var crawlConfig *string

func init() {
	crawlConfig = crawlCmd.Flags().String("config", "config.json5", "The pipeline config to run with.")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [--config <path/to/config.json5>]",
	Short: "Runs a full scrape-and-transform pipeline pass.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[pipeline.Config](*crawlConfig)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		manifest, err := pipeline.Run(cmd.Context(), cfg)
		if err != nil {
			serviceutil.Fatal("run failed", err)
		}
		slog.Info(
			"done",
			"run_id", manifest.RunID,
			"outcome", manifest.Outcome,
			"locations", manifest.Locations,
		)
	},
}
