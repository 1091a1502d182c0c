package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"wastemap-backend/lib/textutil"
	"wastemap-backend/lib/timezone"
	"wastemap-backend/services/locations/dataset"
	"wastemap-backend/services/locations/extract"
)

// ValidationError rejects a single record; the pipeline counts these
// and only aborts when the rejection rate crosses its threshold.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

const scrapedAtLayout = "2006-01-02 15:04:05"

// Normalize converts one raw record into a validated ServiceLocation.
// A record without a usable name or address is structurally broken
// and rejected; everything else degrades gracefully (unparseable
// addresses keep the raw text under needs_review, unmapped service
// labels land under "other").
func Normalize(raw extract.RawRecord) (dataset.ServiceLocation, error) {
	name := textutil.Clean(raw.Name)
	if name == "" {
		return dataset.ServiceLocation{}, &ValidationError{Field: "name", Reason: "missing"}
	}
	rawAddress := textutil.Clean(raw.Address)
	if rawAddress == "" {
		return dataset.ServiceLocation{}, &ValidationError{Field: "address", Reason: "missing"}
	}

	address, parsed := parseAddress(rawAddress)

	coordinates, err := parseCoordinates(raw.Latitude, raw.Longitude)
	if err != nil {
		return dataset.ServiceLocation{}, err
	}

	categories, otherLabels := mapCategories(raw.Services)

	scrapedAt, err := time.ParseInLocation(scrapedAtLayout, raw.ScrapedAt, timezone.Location)
	if err != nil {
		scrapedAt = timezone.Now()
	}

	return dataset.ServiceLocation{
		ID:          StableID(name, rawAddress),
		Name:        name,
		Address:     address,
		Coordinates: coordinates,
		Categories:  categories,
		OtherLabels: otherLabels,
		Phone:       textutil.Clean(raw.Phone),
		Email:       textutil.Clean(raw.Email),
		Hours:       textutil.Clean(raw.Hours),
		DetailURL:   raw.DetailURL,
		NeedsReview: !parsed,
		ScrapedAt:   scrapedAt,
	}, nil
}

// StableID derives the dataset-wide identifier from the
// case/whitespace-insensitive name+address key.
func StableID(name, rawAddress string) string {
	key := textutil.CanonicalKey(name) + "|" + textutil.CanonicalKey(rawAddress)
	sum := sha256.Sum256([]byte(key))
	return "SVC" + hex.EncodeToString(sum[:])[:12]
}

func parseCoordinates(latText, longText string) (*dataset.Coordinates, error) {
	latText = strings.TrimSpace(latText)
	longText = strings.TrimSpace(longText)
	if latText == "" && longText == "" {
		return nil, nil
	}
	if latText == "" || longText == "" {
		field := "latitude"
		if longText == "" {
			field = "longitude"
		}
		return nil, &ValidationError{Field: field, Reason: "missing its pair"}
	}

	lat, err := strconv.ParseFloat(latText, 64)
	if err != nil {
		return nil, &ValidationError{Field: "latitude", Reason: fmt.Sprintf("not a number: %q", latText)}
	}
	long, err := strconv.ParseFloat(longText, 64)
	if err != nil {
		return nil, &ValidationError{Field: "longitude", Reason: fmt.Sprintf("not a number: %q", longText)}
	}
	if lat < -90 || lat > 90 {
		return nil, &ValidationError{Field: "latitude", Reason: fmt.Sprintf("out of range: %v", lat)}
	}
	if long < -180 || long > 180 {
		return nil, &ValidationError{Field: "longitude", Reason: fmt.Sprintf("out of range: %v", long)}
	}
	return &dataset.Coordinates{Lat: lat, Long: long}, nil
}

func mapCategories(services string) ([]string, []string) {
	var categories []string
	var otherLabels []string
	for _, label := range strings.Split(services, ",") {
		label = textutil.Clean(label)
		if label == "" {
			continue
		}
		code, known := categoryVocabulary[strings.ToLower(label)]
		if !known {
			// never silently drop a label the vocabulary misses
			code = "other"
			otherLabels = append(otherLabels, label)
		}
		if !slices.Contains(categories, code) {
			categories = append(categories, code)
		}
	}
	if len(categories) == 0 {
		categories = []string{"unknown"}
	}
	return categories, otherLabels
}
