package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"wastemap-backend/lib/configutil"
	"wastemap-backend/lib/serviceutil"
	"wastemap-backend/lib/telemetry"
	"wastemap-backend/services/locations/dataset"
	"wastemap-backend/services/locations/navigate"
	"wastemap-backend/services/locations/pipeline"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	telemetry.InitSlog(*verbose)

	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "wastemap")
	if err == nil {
		defer tel.Shutdown(ctx)
		telemetry.InstrumentPerfStats(ctx)
	}

	cfg, err := configutil.ReadConfig[pipeline.Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	manifest, err := pipeline.Run(ctx, cfg)
	if err != nil {
		var coverage *navigate.CoverageError
		if errors.As(err, &coverage) {
			slog.Error("run aborted", "err", coverage, "run_id", manifest.RunID)
		} else {
			slog.Error("run failed", "err", err, "run_id", manifest.RunID)
		}
		os.Exit(1)
	}

	if manifest.Outcome == dataset.OutcomePartial {
		slog.Warn(
			"run finished with partial coverage",
			"coverage", manifest.CoverageRatio,
			"rejected", manifest.RecordsRejected,
		)
		os.Exit(2)
	}
}
