package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
	"wastemap-backend/lib/sqliteutil"
	"wastemap-backend/lib/timezone"
	"wastemap-backend/services/locations/dataset"
	"wastemap-backend/services/locations/dataset/db"
	"wastemap-backend/services/locations/extract"
	"wastemap-backend/services/locations/fetch"
	"wastemap-backend/services/locations/navigate"
	"wastemap-backend/services/locations/normalize"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/locations/pipeline")

// tally is the only cross-worker mutable state besides the fetch
// rate gate; everything goes through its one mutex so the abort
// thresholds can't race.
type tally struct {
	mu           sync.Mutex
	rawCapture   map[string][]extract.RawRecord
	records      []extract.RawRecord
	parseSkipped int
	detailOk     int
	detailFailed int
}

// Run executes one full crawl: enumerate listing pages, extract and
// enrich raw records, validate, merge with the previously persisted
// dataset and publish the run's artifacts. Nothing is persisted
// unless the run makes it to the writer; a failed run leaves the
// previously published dataset untouched.
func Run(ctx context.Context, cfg Config) (dataset.Manifest, error) {
	cfg = cfg.withDefaults()

	if cfg.RunTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.RunTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	startedAt := timezone.Now()
	manifest := dataset.Manifest{
		RunID:     startedAt.Format("20060102-150405"),
		StartedAt: startedAt.Format(time.RFC3339),
		Outcome:   dataset.OutcomeFailed,
	}
	span.SetAttributes(attribute.String("run_id", manifest.RunID))

	storeDb, err := sqliteutil.OpenDB(db.Schema, cfg.StorePath)
	if err != nil {
		return manifest, err
	}
	defer storeDb.Close()
	store := dataset.NewStore(storeDb)

	existing, err := store.Load(ctx)
	if err != nil {
		return manifest, err
	}
	slog.Info("run started", "run_id", manifest.RunID, "seeds", len(cfg.Seeds), "known_locations", existing.Len())

	fetcher := fetch.NewClient(fetch.Options{
		PolitenessInterval: cfg.politenessInterval(),
		MaxAttempts:        cfg.MaxAttempts,
		BackoffFloor:       cfg.backoffFloor(),
		RequestTimeout:     cfg.requestTimeout(),
		UserAgent:          cfg.UserAgent,
	})
	navigator := navigate.New(fetcher, navigate.Options{
		Seeds:             cfg.Seeds,
		MaxPagesPerSeed:   cfg.MaxPagesPerSeed,
		MaxFailedFraction: cfg.MaxFailedPageFraction,
		Workers:           cfg.Workers,
	})

	t := &tally{rawCapture: map[string][]extract.RawRecord{}}
	pageStats, err := navigator.Enumerate(ctx, func(ctx context.Context, page navigate.Page) (int, error) {
		return visitListingPage(ctx, fetcher, t, page)
	})

	fillPageCounts(&manifest, pageStats, t)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return manifest, err
	}

	t.mu.Lock()
	records := t.records
	manifest.RecordsExtracted = len(records)
	t.mu.Unlock()

	validated, rejected := validateAll(records)
	manifest.RecordsRejected = rejected
	if len(records) > 0 {
		rejectionRate := float64(rejected) / float64(len(records))
		if rejectionRate > cfg.MaxRejectionRate {
			err := &navigate.CoverageError{
				Unit:      "records",
				Failed:    rejected,
				Attempted: len(records),
				Threshold: cfg.MaxRejectionRate,
			}
			span.SetStatus(codes.Error, err.Error())
			return manifest, err
		}
	}

	mergeResult := dataset.Merge(ctx, existing, validated, dataset.MergeOptions{
		PurgeMissing: cfg.PurgeMissing,
	})
	manifest.Collisions = mergeResult.Collisions
	manifest.Retained = mergeResult.Retained
	manifest.Locations = mergeResult.Dataset.Len()
	manifest.FinishedAt = timezone.Now().Format(time.RFC3339)
	manifest.Outcome = outcome(manifest)

	writer := dataset.Writer{OutputDir: cfg.OutputDir}
	err = writer.Write(ctx, dataset.RunArtifacts{
		RawCapture: t.rawCapture,
		Dataset:    mergeResult.Dataset,
		Manifest:   manifest,
	})
	if err != nil {
		manifest.Outcome = dataset.OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return manifest, err
	}

	err = store.Replace(ctx, mergeResult.Dataset)
	if err != nil {
		// artifacts are already committed; the next run just merges
		// against a stale store
		slog.Error("failed to update the location store", "err", err)
		return manifest, err
	}

	slog.Info(
		"run finished",
		"run_id", manifest.RunID,
		"outcome", manifest.Outcome,
		"locations", manifest.Locations,
		"rejected", manifest.RecordsRejected,
		"coverage", manifest.CoverageRatio,
	)
	return manifest, nil
}

func visitListingPage(ctx context.Context, fetcher *fetch.Client, t *tally, page navigate.Page) (int, error) {
	records, parseErrs := extract.Listing(ctx, page.Source, page.Number)
	for _, perr := range parseErrs {
		slog.Warn("skipping malformed entry", "err", perr)
	}

	enriched := make([]extract.RawRecord, 0, len(records))
	detailOk, detailFailed := 0, 0
	for _, card := range records {
		if card.DetailURL == "" {
			enriched = append(enriched, card)
			continue
		}
		src, err := fetcher.Fetch(ctx, card.DetailURL)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			// the card alone is still a usable record
			slog.Warn("detail page failed, keeping listing data", "url", card.DetailURL, "err", err)
			detailFailed++
			enriched = append(enriched, card)
			continue
		}
		detailOk++
		enriched = append(enriched, extract.Detail(ctx, src, card))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rawCapture[page.URL] = enriched
	t.records = append(t.records, enriched...)
	t.parseSkipped += len(parseErrs)
	t.detailOk += detailOk
	t.detailFailed += detailFailed
	return len(records), nil
}

func validateAll(records []extract.RawRecord) ([]dataset.ServiceLocation, int) {
	var validated []dataset.ServiceLocation
	rejected := 0
	for _, raw := range records {
		loc, err := normalize.Normalize(raw)
		if err != nil {
			var verr *normalize.ValidationError
			if errors.As(err, &verr) {
				slog.Warn("record rejected", "name", raw.Name, "field", verr.Field, "reason", verr.Reason)
			} else {
				slog.Warn("record rejected", "name", raw.Name, "err", err)
			}
			rejected++
			continue
		}
		validated = append(validated, loc)
	}
	return validated, rejected
}

func fillPageCounts(manifest *dataset.Manifest, pageStats navigate.Stats, t *tally) {
	t.mu.Lock()
	defer t.mu.Unlock()
	manifest.PagesFetched = pageStats.Fetched + t.detailOk
	manifest.PagesFailed = pageStats.Failed + t.detailFailed
	manifest.ZeroYieldPages = pageStats.ZeroYield
	attempted := manifest.PagesFetched + manifest.PagesFailed
	if attempted > 0 {
		manifest.CoverageRatio = float64(manifest.PagesFetched) / float64(attempted)
	}
}

func outcome(manifest dataset.Manifest) string {
	if manifest.PagesFailed == 0 && manifest.RecordsRejected == 0 {
		return dataset.OutcomeSuccess
	}
	return dataset.OutcomePartial
}
