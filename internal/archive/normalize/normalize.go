// Package normalize canonicalizes raw address fields and derives
// census/cultural region metadata.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bizzlechizzle/au-archive/internal/log"
)

var titleCaser = cases.Title(language.AmericanEnglish)

var zipDigitsOnly = regexp.MustCompile(`\D`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// Confidence is passed through from the caller, not derived.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Raw is an address as received from an operator, import file, or
// geocoder, before normalization.
type Raw struct {
	Street     string
	City       string
	County     string
	State      string
	Zipcode    string
	Confidence Confidence
}

// Normalized is the canonicalized result. Invalid fields become ""
// rather than rejecting the whole record
type Normalized struct {
	Street     string
	City       string
	County     string
	State      string
	Zipcode    string
	Confidence Confidence

	CensusRegion    string
	CensusDivision  string
	StateDirection  string
	CulturalRegion  string // suggestion only; caller decides whether to apply it
}

// Address normalizes a raw address. lat/lng (may be zero if unknown)
// feed the region derivation; invalid fields are logged once via the
// component logger and set to "" rather than rejecting the record.
func Address(raw Raw, lat, lng float64) Normalized {
	logger := log.WithComponent("normalize")

	out := Normalized{Confidence: raw.Confidence}

	out.Street = normalizeStreet(raw.Street)

	if raw.City != "" {
		out.City = titleCaser.String(strings.TrimSpace(raw.City))
	}

	if raw.County != "" {
		county := strings.TrimSpace(raw.County)
		county = strings.TrimSuffix(county, " County")
		county = strings.TrimSuffix(county, " county")
		out.County = titleCaser.String(county)
	}

	if raw.State != "" {
		if code, ok := ResolveState(raw.State); ok {
			out.State = code
		} else {
			logger.Warn().Str("raw_state", raw.State).Msg("normalize: unresolvable state, dropping field")
		}
	}

	if raw.Zipcode != "" {
		if z, ok := normalizeZip(raw.Zipcode); ok {
			out.Zipcode = z
		} else {
			logger.Warn().Str("raw_zip", raw.Zipcode).Msg("normalize: invalid zipcode, dropping field")
		}
	}

	if out.State != "" {
		if region, division, ok := CensusRegion(out.State); ok {
			out.CensusRegion = region
			out.CensusDivision = division
			out.CulturalRegion = SuggestCulturalRegion(division)
		}
	}
	if lat != 0 || lng != 0 {
		out.StateDirection = StateDirection(lat, lng)
	}

	return out
}

func normalizeStreet(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return whitespaceRun.ReplaceAllString(trimmed, " ")
}

// normalizeZip validates and reformats a zip code to DDDDD or
// DDDDD-DDDD after stripping non-digits
func normalizeZip(raw string) (string, bool) {
	digits := zipDigitsOnly.ReplaceAllString(raw, "")
	switch len(digits) {
	case 5:
		return digits, true
	case 9:
		return digits[:5] + "-" + digits[5:], true
	default:
		return "", false
	}
}
