package dataset

import (
	"slices"
	"strings"
	"time"
)

// Address is the structured form of a scraped address line. Raw keeps
// the original text; when the rule set couldn't break the line apart
// the structured fields stay empty and the owning location carries
// the needs_review flag.
type Address struct {
	Street   string
	Suburb   string
	State    string
	Postcode string
	Raw      string
}

type Coordinates struct {
	Lat  float64
	Long float64
}

// ServiceLocation is a validated waste-service location. ID is stable
// across crawls, derived from the canonicalized name+address.
type ServiceLocation struct {
	ID          string
	Name        string
	Address     Address
	Coordinates *Coordinates
	// closed vocabulary codes, never empty: unmappable labels land
	// under "other" and a fully unlabelled location gets "unknown"
	Categories []string
	// original labels behind any "other" category entry
	OtherLabels []string
	Phone       string
	Email       string
	Hours       string
	DetailURL   string
	NeedsReview bool
	ScrapedAt   time.Time
}

// Dataset is the merged output of one run, sorted by ID before it is
// ever persisted so identical site state yields identical artifacts.
type Dataset struct {
	Locations []ServiceLocation
}

func (d Dataset) Len() int {
	return len(d.Locations)
}

func (d *Dataset) sort() {
	slices.SortFunc(d.Locations, func(a, b ServiceLocation) int {
		return strings.Compare(a.ID, b.ID)
	})
}

func (d Dataset) index() map[string]int {
	byId := make(map[string]int, len(d.Locations))
	for i, loc := range d.Locations {
		byId[loc.ID] = i
	}
	return byId
}
