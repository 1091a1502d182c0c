package dataset

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
	"wastemap-backend/lib/telemetry"
	"wastemap-backend/lib/timezone"
	"wastemap-backend/services/locations/extract"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func writerArtifacts(runId string) RunArtifacts {
	return RunArtifacts{
		RawCapture: map[string][]extract.RawRecord{
			"https://www.wastedirectory.com.au/locations/vic#1": {
				{Name: "Cleanaway Laverton", Address: "100 Foundation Rd, Laverton North VIC 3026"},
			},
		},
		Dataset: Dataset{Locations: []ServiceLocation{
			{
				ID:   "SVC000000000001",
				Name: "Cleanaway Laverton",
				Address: Address{
					Street:   "100 Foundation Rd",
					Suburb:   "Laverton North",
					State:    "VIC",
					Postcode: "3026",
					Raw:      "100 Foundation Rd, Laverton North VIC 3026",
				},
				Coordinates: &Coordinates{Lat: -37.8265, Long: 144.7853},
				Categories:  []string{"general_waste", "recycling"},
				Phone:       "+61399311000",
				ScrapedAt:   time.Date(2026, 3, 14, 9, 30, 0, 0, timezone.Location),
			},
		}},
		Manifest: Manifest{
			RunID:            runId,
			PagesFetched:     1,
			RecordsExtracted: 1,
			Locations:        1,
			CoverageRatio:    1,
			Outcome:          OutcomeSuccess,
		},
	}
}

func TestWriteCommitsPointerLast(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/dataset")
	defer cleanup()

	dir := t.TempDir()
	writer := Writer{OutputDir: dir}

	err := writer.Write(context.Background(), writerArtifacts("20260314-093000"))
	require.NoError(t, err)

	runDir, err := CurrentRunDir(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "runs", "20260314-093000"), runDir)
	for _, file := range []string{"raw_capture.json", "locations.csv", "manifest.json"} {
		_, err := os.Stat(filepath.Join(runDir, file))
		require.NoError(t, err)
	}

	manifest, err := ReadCurrentManifest(dir)
	require.NoError(t, err)
	require.Equal(t, "20260314-093000", manifest.RunID)
	require.Equal(t, OutcomeSuccess, manifest.Outcome)
}

func TestWriteExplodesCategoriesInCsv(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/dataset")
	defer cleanup()

	dir := t.TempDir()
	writer := Writer{OutputDir: dir}
	require.NoError(t, writer.Write(context.Background(), writerArtifacts("20260314-093000")))

	path, err := CurrentProcessedPath(dir)
	require.NoError(t, err)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	// header plus one row per (location, category) pair
	require.Len(t, rows, 3)
	diff := cmp.Diff(processedColumns, rows[0])
	if diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, "general_waste", rows[1][8])
	require.Equal(t, "recycling", rows[2][8])
	require.Equal(t, "SVC000000000001", rows[1][0])
	require.Equal(t, "-37.8265", rows[1][6])
	require.Equal(t, "144.7853", rows[1][7])
}

func TestFailedWriteLeavesPointerUntouched(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/dataset")
	defer cleanup()

	dir := t.TempDir()
	writer := Writer{OutputDir: dir}
	require.NoError(t, writer.Write(context.Background(), writerArtifacts("20260314-093000")))

	// force the second run's csv to fail by occupying its path with a
	// directory
	blockedDir := filepath.Join(dir, "runs", "20260314-103000")
	require.NoError(t, os.MkdirAll(filepath.Join(blockedDir, processedFile), 0755))

	err := writer.Write(context.Background(), writerArtifacts("20260314-103000"))
	var werr *WriteError
	require.ErrorAs(t, err, &werr)

	// the reader still sees the previous complete run
	runDir, err := CurrentRunDir(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "runs", "20260314-093000"), runDir)
}

func TestIdenticalDatasetsWriteIdenticalCsv(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/dataset")
	defer cleanup()

	dir := t.TempDir()
	writer := Writer{OutputDir: dir}
	require.NoError(t, writer.Write(context.Background(), writerArtifacts("20260314-093000")))
	require.NoError(t, writer.Write(context.Background(), writerArtifacts("20260314-103000")))

	first, err := os.ReadFile(filepath.Join(dir, "runs", "20260314-093000", processedFile))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "runs", "20260314-103000", processedFile))
	require.NoError(t, err)
	require.Equal(t, first, second)
}
