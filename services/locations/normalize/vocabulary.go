package normalize

// closed vocabulary mapping the site's free-text service labels to
// category codes. keys are lowercased cleaned labels. labels missing
// from this table are kept under "other" with the original text.
var categoryVocabulary = map[string]string{
	"general waste":               "general_waste",
	"household waste":             "general_waste",
	"landfill":                    "general_waste",
	"recycling":                   "recycling",
	"commingled recycling":        "recycling",
	"glass":                       "recycling",
	"green waste":                 "green_waste",
	"garden waste":                "green_waste",
	"garden organics":             "green_waste",
	"food organics":               "green_waste",
	"hazardous waste":             "hazardous",
	"chemical disposal":           "hazardous",
	"asbestos":                    "hazardous",
	"e-waste":                     "ewaste",
	"ewaste":                      "ewaste",
	"electronic waste":            "ewaste",
	"scrap metal":                 "scrap_metal",
	"metal recycling":             "scrap_metal",
	"skip bins":                   "skip_bins",
	"skip bin hire":               "skip_bins",
	"liquid waste":                "liquid_waste",
	"grease trap":                 "liquid_waste",
	"medical waste":               "medical_waste",
	"clinical waste":              "medical_waste",
	"construction & demolition":   "construction",
	"construction and demolition": "construction",
	"building waste":              "construction",
	"tyres":                       "tyres",
	"tyre recycling":              "tyres",
	"cardboard":                   "paper_cardboard",
	"paper and cardboard":         "paper_cardboard",
	"paper & cardboard":           "paper_cardboard",
	"mattress recycling":          "mattresses",
	"mattresses":                  "mattresses",
}
