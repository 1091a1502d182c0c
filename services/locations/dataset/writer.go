package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"wastemap-backend/services/locations/extract"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	currentPointerFile = "CURRENT"
	rawCaptureFile     = "raw_capture.json"
	processedFile      = "locations.csv"
	manifestFile       = "manifest.json"
)

const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Manifest records what a run did. It is the orchestrator's and the
// reporting layer's summary of the artifacts next to it.
type Manifest struct {
	RunID            string  `json:"run_id"`
	StartedAt        string  `json:"started_at"`
	FinishedAt       string  `json:"finished_at"`
	PagesFetched     int     `json:"pages_fetched"`
	PagesFailed      int     `json:"pages_failed"`
	ZeroYieldPages   int     `json:"zero_yield_pages"`
	RecordsExtracted int     `json:"records_extracted"`
	RecordsRejected  int     `json:"records_rejected"`
	Collisions       int     `json:"collisions"`
	Retained         int     `json:"retained"`
	Locations        int     `json:"locations"`
	CoverageRatio    float64 `json:"coverage_ratio"`
	Outcome          string  `json:"outcome"`
}

// WriteError is a run-level persistence failure. The previous CURRENT
// pointer is guaranteed untouched when one of these comes back.
type WriteError struct {
	Path  string
	cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.cause)
}

func (e *WriteError) Unwrap() error {
	return e.cause
}

type RunArtifacts struct {
	// raw capture, keyed by page identifier
	RawCapture map[string][]extract.RawRecord
	Dataset    Dataset
	Manifest   Manifest
}

// Writer persists one run's artifacts under a run-stamped directory
// and flips the CURRENT pointer last, so readers either see the
// previous complete dataset or the new complete one, never a half
// written run.
type Writer struct {
	OutputDir string
}

func (w Writer) Write(ctx context.Context, art RunArtifacts) error {
	ctx, span := tracer.Start(ctx, "writer:Write")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", art.Manifest.RunID))

	runDir := filepath.Join(w.OutputDir, "runs", art.Manifest.RunID)
	err := os.MkdirAll(runDir, 0755)
	if err != nil {
		return w.fail(span, runDir, err)
	}

	err = writeJson(filepath.Join(runDir, rawCaptureFile), art.RawCapture)
	if err != nil {
		return w.fail(span, filepath.Join(runDir, rawCaptureFile), err)
	}

	err = writeProcessedCsv(filepath.Join(runDir, processedFile), art.Dataset)
	if err != nil {
		return w.fail(span, filepath.Join(runDir, processedFile), err)
	}

	err = writeJson(filepath.Join(runDir, manifestFile), art.Manifest)
	if err != nil {
		return w.fail(span, filepath.Join(runDir, manifestFile), err)
	}

	// the pointer swap is the commit point: write the new pointer to
	// a temp file and rename it over the old one
	pointer := filepath.Join(w.OutputDir, currentPointerFile)
	tmp := pointer + ".tmp"
	err = os.WriteFile(tmp, []byte(art.Manifest.RunID+"\n"), 0644)
	if err != nil {
		return w.fail(span, tmp, err)
	}
	err = os.Rename(tmp, pointer)
	if err != nil {
		return w.fail(span, pointer, err)
	}

	return nil
}

func (w Writer) fail(span trace.Span, path string, err error) error {
	werr := &WriteError{Path: path, cause: err}
	span.SetStatus(codes.Error, werr.Error())
	return werr
}

// CurrentRunDir resolves the CURRENT pointer to the directory of the
// last committed run.
func CurrentRunDir(outputDir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(outputDir, currentPointerFile))
	if err != nil {
		return "", err
	}
	runId := strings.TrimSpace(string(raw))
	if runId == "" {
		return "", fmt.Errorf("empty CURRENT pointer in %s", outputDir)
	}
	return filepath.Join(outputDir, "runs", runId), nil
}

// ReadCurrentManifest loads the manifest of the last committed run.
func ReadCurrentManifest(outputDir string) (Manifest, error) {
	runDir, err := CurrentRunDir(outputDir)
	if err != nil {
		return Manifest{}, err
	}
	raw, err := os.ReadFile(filepath.Join(runDir, manifestFile))
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	err = json.Unmarshal(raw, &manifest)
	return manifest, err
}

// CurrentProcessedPath returns the processed dataset file of the last
// committed run, which is the only path the reporting layer reads.
func CurrentProcessedPath(outputDir string) (string, error) {
	runDir, err := CurrentRunDir(outputDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(runDir, processedFile), nil
}

func writeJson(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0644)
}

// the stable column set of the processed dataset; one row per
// (location, category) pair like the source project's unpivot step
var processedColumns = []string{
	"id", "name", "street", "suburb", "state", "postcode",
	"latitude", "longitude", "category", "other_labels",
	"phone", "email", "hours", "needs_review", "scraped_at",
}

func writeProcessedCsv(path string, d Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	err = w.Write(processedColumns)
	if err != nil {
		return err
	}

	for _, loc := range d.Locations {
		lat, long := "", ""
		if loc.Coordinates != nil {
			lat = strconv.FormatFloat(loc.Coordinates.Lat, 'f', -1, 64)
			long = strconv.FormatFloat(loc.Coordinates.Long, 'f', -1, 64)
		}
		needsReview := "false"
		if loc.NeedsReview {
			needsReview = "true"
		}
		for _, category := range loc.Categories {
			err = w.Write([]string{
				loc.ID, loc.Name,
				loc.Address.Street, loc.Address.Suburb,
				loc.Address.State, loc.Address.Postcode,
				lat, long, category,
				strings.Join(loc.OtherLabels, "; "),
				loc.Phone, loc.Email, loc.Hours,
				needsReview,
				loc.ScrapedAt.Format("2006-01-02 15:04:05"),
			})
			if err != nil {
				return err
			}
		}
	}

	w.Flush()
	err = w.Error()
	if err != nil {
		return err
	}
	return f.Sync()
}
