package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
	"wastemap-backend/lib/timezone"

	"go.opentelemetry.io/otel/codes"

	_ "modernc.org/sqlite"
)

// Store keeps the current merged dataset between runs so locations
// the site temporarily delists can be carried forward.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

func (s Store) Load(ctx context.Context) (Dataset, error) {
	ctx, span := tracer.Start(ctx, "store:Load")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, street, suburb, state, postcode, raw_address,
		       latitude, longitude, categories, other_labels,
		       phone, email, hours, detail_url, needs_review, scraped_at
		FROM locations ORDER BY id
	`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Dataset{}, err
	}
	defer rows.Close()

	var out Dataset
	for rows.Next() {
		var loc ServiceLocation
		var lat, long sql.NullFloat64
		var categories, otherLabels string
		var needsReview int64
		var scrapedAt int64
		err := rows.Scan(
			&loc.ID, &loc.Name,
			&loc.Address.Street, &loc.Address.Suburb, &loc.Address.State,
			&loc.Address.Postcode, &loc.Address.Raw,
			&lat, &long, &categories, &otherLabels,
			&loc.Phone, &loc.Email, &loc.Hours, &loc.DetailURL,
			&needsReview, &scrapedAt,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Dataset{}, err
		}
		if lat.Valid && long.Valid {
			loc.Coordinates = &Coordinates{Lat: lat.Float64, Long: long.Float64}
		}
		err = json.Unmarshal([]byte(categories), &loc.Categories)
		if err != nil {
			return Dataset{}, err
		}
		err = json.Unmarshal([]byte(otherLabels), &loc.OtherLabels)
		if err != nil {
			return Dataset{}, err
		}
		loc.NeedsReview = needsReview != 0
		loc.ScrapedAt = time.Unix(scrapedAt, 0).In(timezone.Location)
		out.Locations = append(out.Locations, loc)
	}
	return out, rows.Err()
}

// Replace swaps the stored dataset for the given one in a single
// transaction. Called only after the run's artifacts are safely
// written, so a crashed run never half-updates the store.
func (s Store) Replace(ctx context.Context, d Dataset) error {
	ctx, span := tracer.Start(ctx, "store:Replace")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM locations`)
	if err != nil {
		return err
	}

	for _, loc := range d.Locations {
		var lat, long sql.NullFloat64
		if loc.Coordinates != nil {
			lat = sql.NullFloat64{Float64: loc.Coordinates.Lat, Valid: true}
			long = sql.NullFloat64{Float64: loc.Coordinates.Long, Valid: true}
		}
		categories, err := json.Marshal(loc.Categories)
		if err != nil {
			return err
		}
		otherLabels, err := json.Marshal(loc.OtherLabels)
		if err != nil {
			return err
		}
		needsReview := int64(0)
		if loc.NeedsReview {
			needsReview = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO locations (
				id, name, street, suburb, state, postcode, raw_address,
				latitude, longitude, categories, other_labels,
				phone, email, hours, detail_url, needs_review, scraped_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			loc.ID, loc.Name,
			loc.Address.Street, loc.Address.Suburb, loc.Address.State,
			loc.Address.Postcode, loc.Address.Raw,
			lat, long, string(categories), string(otherLabels),
			loc.Phone, loc.Email, loc.Hours, loc.DetailURL,
			needsReview, loc.ScrapedAt.Unix(),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	return tx.Commit()
}
