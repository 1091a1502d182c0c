package normalize

import (
	"testing"
	"wastemap-backend/services/locations/dataset"

	"github.com/google/go-cmp/cmp"
)

func TestParseAddress(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		expected dataset.Address
		parsed   bool
	}{
		{
			name: "standard line",
			raw:  "100 Foundation Rd, Laverton North VIC 3026",
			expected: dataset.Address{
				Street:   "100 Foundation Rd",
				Suburb:   "Laverton North",
				State:    "VIC",
				Postcode: "3026",
				Raw:      "100 Foundation Rd, Laverton North VIC 3026",
			},
			parsed: true,
		},
		{
			name: "spelled out state",
			raw:  "274 Osborne Ave, Springvale Victoria 3171",
			expected: dataset.Address{
				Street:   "274 Osborne Ave",
				Suburb:   "Springvale",
				State:    "VIC",
				Postcode: "3171",
				Raw:      "274 Osborne Ave, Springvale Victoria 3171",
			},
			parsed: true,
		},
		{
			name: "two word state",
			raw:  "15 Port Kembla Dr, Bibra Lake Western Australia 6163",
			expected: dataset.Address{
				Street:   "15 Port Kembla Dr",
				Suburb:   "Bibra Lake",
				State:    "WA",
				Postcode: "6163",
				Raw:      "15 Port Kembla Dr, Bibra Lake Western Australia 6163",
			},
			parsed: true,
		},
		{
			name: "abbreviation with trailing dot",
			raw:  "12 Tip Rd, Hobart Tas. 7000",
			expected: dataset.Address{
				Street:   "12 Tip Rd",
				Suburb:   "Hobart",
				State:    "TAS",
				Postcode: "7000",
				Raw:      "12 Tip Rd, Hobart Tas. 7000",
			},
			parsed: true,
		},
		{
			name: "multi segment street",
			raw:  "Lot 5, Dump Rd, Somewhere NSW 2000",
			expected: dataset.Address{
				Street:   "Lot 5, Dump Rd",
				Suburb:   "Somewhere",
				State:    "NSW",
				Postcode: "2000",
				Raw:      "Lot 5, Dump Rd, Somewhere NSW 2000",
			},
			parsed: true,
		},
		{
			name: "no commas",
			raw:  "100 Foundation Rd Laverton North VIC 3026",
			expected: dataset.Address{
				Street:   "100 Foundation Rd Laverton North",
				State:    "VIC",
				Postcode: "3026",
				Raw:      "100 Foundation Rd Laverton North VIC 3026",
			},
			parsed: true,
		},
		{
			name:     "missing postcode",
			raw:      "100 Foundation Rd, Laverton North VIC",
			expected: dataset.Address{Raw: "100 Foundation Rd, Laverton North VIC"},
			parsed:   false,
		},
		{
			name:     "missing state",
			raw:      "100 Foundation Rd, Laverton North 3026",
			expected: dataset.Address{Raw: "100 Foundation Rd, Laverton North 3026"},
			parsed:   false,
		},
		{
			name:     "nothing usable",
			raw:      "PO Box (see website)",
			expected: dataset.Address{Raw: "PO Box (see website)"},
			parsed:   false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, parsed := parseAddress(c.raw)
			if parsed != c.parsed {
				t.Fatalf("parsed = %v, expected %v", parsed, c.parsed)
			}
			diff := cmp.Diff(c.expected, got)
			if diff != "" {
				t.Fatal(diff)
			}
		})
	}
}
