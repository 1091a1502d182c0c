package commands

import (
	"encoding/csv"
	"fmt"
	"os"
	"wastemap-backend/lib/serviceutil"
	"wastemap-backend/services/locations/dataset"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var showOutputDir *string
var showLimit *int

func init() {
	showOutputDir = showCmd.PersistentFlags().String("artifacts", "artifacts", "The pipeline's output directory.")
	showLimit = showLocationsCmd.Flags().Int("limit", 25, "Maximum number of rows to print.")
	showCmd.AddCommand(showManifestCmd)
	showCmd.AddCommand(showLocationsCmd)
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Inspects the currently published dataset.",
}

var showManifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Prints the manifest of the last committed run.",
	Run: func(cmd *cobra.Command, args []string) {
		manifest, err := dataset.ReadCurrentManifest(*showOutputDir)
		if err != nil {
			serviceutil.Fatal("failed to read current manifest", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRows([]table.Row{
			{"run id", manifest.RunID},
			{"outcome", manifest.Outcome},
			{"started", manifest.StartedAt},
			{"finished", manifest.FinishedAt},
			{"pages fetched", manifest.PagesFetched},
			{"pages failed", manifest.PagesFailed},
			{"zero-yield pages", manifest.ZeroYieldPages},
			{"records extracted", manifest.RecordsExtracted},
			{"records rejected", manifest.RecordsRejected},
			{"collisions", manifest.Collisions},
			{"retained", manifest.Retained},
			{"locations", manifest.Locations},
			{"coverage", fmt.Sprintf("%.1f%%", manifest.CoverageRatio*100)},
		})
		t.Render()
	},
}

var showLocationsCmd = &cobra.Command{
	Use:   "locations [--limit <n>]",
	Short: "Prints rows from the currently published processed dataset.",
	Run: func(cmd *cobra.Command, args []string) {
		path, err := dataset.CurrentProcessedPath(*showOutputDir)
		if err != nil {
			serviceutil.Fatal("failed to resolve current dataset", err)
		}
		f, err := os.Open(path)
		if err != nil {
			serviceutil.Fatal("failed to open current dataset", err)
		}
		defer f.Close()

		rows, err := csv.NewReader(f).ReadAll()
		if err != nil {
			serviceutil.Fatal("failed to parse current dataset", err)
		}
		if len(rows) == 0 {
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		header := table.Row{}
		for _, col := range rows[0] {
			header = append(header, col)
		}
		t.AppendHeader(header)
		for i, row := range rows[1:] {
			if i >= *showLimit {
				break
			}
			out := table.Row{}
			for _, cell := range row {
				out = append(out, cell)
			}
			t.AppendRow(out)
		}
		t.Render()
	},
}
