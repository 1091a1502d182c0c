package normalize

import (
	"regexp"
	"strings"
	"wastemap-backend/lib/textutil"
	"wastemap-backend/services/locations/dataset"
)

// the source writes states inconsistently ("Vic", "Victoria",
// "Western Australia"); everything canonicalizes to the official
// abbreviations
var stateAliases = map[string]string{
	"nsw":                          "NSW",
	"new south wales":              "NSW",
	"vic":                          "VIC",
	"vic.":                         "VIC",
	"victoria":                     "VIC",
	"qld":                          "QLD",
	"queensland":                   "QLD",
	"sa":                           "SA",
	"south australia":              "SA",
	"wa":                           "WA",
	"western australia":            "WA",
	"tas":                          "TAS",
	"tas.":                         "TAS",
	"tasmania":                     "TAS",
	"nt":                           "NT",
	"northern territory":           "NT",
	"act":                          "ACT",
	"australian capital territory": "ACT",
}

var statePattern = regexp.MustCompile(
	`(?i)\b(new south wales|western australia|south australia|northern territory|australian capital territory|victoria|queensland|tasmania|nsw|vic\.?|qld|sa|wa|tas\.?|nt|act)\b`,
)

// australian postcodes are exactly four digits
var postcodePattern = regexp.MustCompile(`\b(\d{4})\b`)

// parseAddress breaks an address line into structured components
// using a fixed rule set: the last 4-digit group is the postcode, the
// last state alias is the state, commas split street from suburb.
// Lines the rules can't handle come back with only Raw set and
// parsed=false, which the caller turns into the needs_review flag.
func parseAddress(raw string) (dataset.Address, bool) {
	address := dataset.Address{Raw: raw}

	postcodeMatches := postcodePattern.FindAllStringIndex(raw, -1)
	stateMatches := statePattern.FindAllStringIndex(raw, -1)
	if postcodeMatches == nil || stateMatches == nil {
		return address, false
	}

	lastPostcode := postcodeMatches[len(postcodeMatches)-1]
	lastState := stateMatches[len(stateMatches)-1]
	address.Postcode = raw[lastPostcode[0]:lastPostcode[1]]
	address.State = canonicalState(raw[lastState[0]:lastState[1]])
	if address.State == "" {
		return dataset.Address{Raw: raw}, false
	}

	// everything before the state is street and suburb
	locality := strings.TrimRight(raw[:lastState[0]], " ,")
	segments := strings.Split(locality, ",")
	for i := range segments {
		segments[i] = textutil.Clean(segments[i])
	}
	switch {
	case len(segments) >= 2:
		address.Suburb = segments[len(segments)-1]
		address.Street = textutil.Clean(strings.Join(segments[:len(segments)-1], ", "))
	case len(segments) == 1:
		address.Street = segments[0]
	}
	if address.Street == "" {
		return dataset.Address{Raw: raw}, false
	}

	return address, true
}

func canonicalState(matched string) string {
	key := strings.ToLower(strings.TrimSuffix(matched, "."))
	return stateAliases[key]
}
