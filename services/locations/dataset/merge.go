package dataset

import (
	"context"
	"log/slog"
	"slices"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("services/locations/dataset")

// names at least this similar under a different ID get a warning, it
// usually means the site renamed a location and the key changed
const nearDuplicateSimilarity = 0.95

type MergeOptions struct {
	// drop previously-seen locations absent from this crawl instead
	// of carrying them forward
	PurgeMissing bool
}

type MergeResult struct {
	Dataset Dataset
	// incoming records that collided on the same computed ID
	Collisions int
	// previously-seen locations carried forward because the crawl
	// no longer listed them
	Retained int
}

// Merge folds one crawl's validated locations into the previously
// persisted dataset. Incoming values win per field where both sides
// have one; existing values survive where the new crawl came back
// empty. Two incoming records with the same ID are duplicates and the
// later-seen fields win, with a warning listing the collision.
func Merge(ctx context.Context, existing Dataset, incoming []ServiceLocation, opts MergeOptions) MergeResult {
	_, span := tracer.Start(ctx, "Merge")
	defer span.End()

	var result MergeResult

	merged := Dataset{}
	byId := map[string]int{}

	for _, loc := range incoming {
		if i, seen := byId[loc.ID]; seen {
			slog.Warn(
				"identifier collision between incoming records",
				"id", loc.ID,
				"kept_name", loc.Name,
				"previous_name", merged.Locations[i].Name,
			)
			merged.Locations[i] = overlay(merged.Locations[i], loc)
			result.Collisions++
			continue
		}
		byId[loc.ID] = len(merged.Locations)
		merged.Locations = append(merged.Locations, loc)
	}

	warnNearDuplicates(merged.Locations)

	existingById := existing.index()
	for id, i := range byId {
		if j, ok := existingById[id]; ok {
			merged.Locations[i] = overlay(existing.Locations[j], merged.Locations[i])
			// re-seeing an unchanged location is not fresh data; keep
			// the stored timestamp so an unchanged site yields an
			// unchanged dataset
			if sameContent(existing.Locations[j], merged.Locations[i]) {
				merged.Locations[i].ScrapedAt = existing.Locations[j].ScrapedAt
			}
		}
	}
	if !opts.PurgeMissing {
		for _, old := range existing.Locations {
			if _, ok := byId[old.ID]; !ok {
				merged.Locations = append(merged.Locations, old)
				result.Retained++
			}
		}
	}

	merged.sort()
	result.Dataset = merged

	span.SetAttributes(
		attribute.Int("incoming", len(incoming)),
		attribute.Int("merged", merged.Len()),
		attribute.Int("collisions", result.Collisions),
		attribute.Int("retained", result.Retained),
	)
	return result
}

// overlay applies the newer record on top of the older one, field by
// field; empty newer fields keep the older value.
func overlay(older, newer ServiceLocation) ServiceLocation {
	out := newer
	if out.Name == "" {
		out.Name = older.Name
	}
	if out.Address.Raw == "" {
		out.Address = older.Address
	}
	if out.Coordinates == nil {
		out.Coordinates = older.Coordinates
	}
	if len(out.Categories) == 0 || onlyUnknown(out.Categories) && len(older.Categories) > 0 && !onlyUnknown(older.Categories) {
		out.Categories = older.Categories
		out.OtherLabels = older.OtherLabels
	}
	if out.Phone == "" {
		out.Phone = older.Phone
	}
	if out.Email == "" {
		out.Email = older.Email
	}
	if out.Hours == "" {
		out.Hours = older.Hours
	}
	if out.DetailURL == "" {
		out.DetailURL = older.DetailURL
	}
	if out.ScrapedAt.IsZero() {
		out.ScrapedAt = older.ScrapedAt
	}
	return out
}

func onlyUnknown(categories []string) bool {
	return len(categories) == 1 && categories[0] == "unknown"
}

// sameContent reports whether two records carry the same data,
// ignoring when they were scraped.
func sameContent(a, b ServiceLocation) bool {
	if a.Coordinates != nil && b.Coordinates != nil {
		if *a.Coordinates != *b.Coordinates {
			return false
		}
	} else if a.Coordinates != b.Coordinates {
		return false
	}
	return a.Name == b.Name &&
		a.Address == b.Address &&
		slices.Equal(a.Categories, b.Categories) &&
		slices.Equal(a.OtherLabels, b.OtherLabels) &&
		a.Phone == b.Phone &&
		a.Email == b.Email &&
		a.Hours == b.Hours &&
		a.DetailURL == b.DetailURL &&
		a.NeedsReview == b.NeedsReview
}

func warnNearDuplicates(locations []ServiceLocation) {
	for i := 0; i < len(locations); i++ {
		for j := i + 1; j < len(locations); j++ {
			similarity := matchr.JaroWinkler(locations[i].Name, locations[j].Name, true)
			if similarity >= nearDuplicateSimilarity {
				slog.Warn(
					"near-duplicate names under different identifiers",
					"left_id", locations[i].ID,
					"right_id", locations[j].ID,
					"left_name", locations[i].Name,
					"right_name", locations[j].Name,
					"similarity", similarity,
				)
			}
		}
	}
}
