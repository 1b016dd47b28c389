package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/au-archive/internal/archive/normalize"
)

func TestAddressNormalizesFields(t *testing.T) {
	raw := normalize.Raw{
		Street:     "  123   Main   St  ",
		City:       "new york",
		County:     "kings county",
		State:      "new york",
		Zipcode:    "10001-1234",
		Confidence: normalize.ConfidenceHigh,
	}
	out := normalize.Address(raw, 40.7128, -74.0060)

	require.Equal(t, "123 Main St", out.Street)
	require.Equal(t, "New York", out.City)
	require.Equal(t, "Kings", out.County)
	require.Equal(t, "NY", out.State)
	require.Equal(t, "10001-1234", out.Zipcode)
	require.Equal(t, normalize.ConfidenceHigh, out.Confidence)
	require.Equal(t, "Northeast", out.CensusRegion)
	require.Equal(t, "Middle Atlantic", out.CensusDivision)
	require.Equal(t, "east", out.StateDirection)
	require.Equal(t, "Mid-Atlantic", out.CulturalRegion)
}

func TestAddressAcceptsStateCode(t *testing.T) {
	out := normalize.Address(normalize.Raw{State: "ca"}, 0, 0)
	require.Equal(t, "CA", out.State)
	require.Equal(t, "West", out.CensusRegion)
	require.Equal(t, "Pacific", out.CensusDivision)
}

func TestAddressDropsUnresolvableStateWithoutRejectingRecord(t *testing.T) {
	out := normalize.Address(normalize.Raw{State: "Nowhereland", Street: "1 Elm St"}, 0, 0)
	require.Equal(t, "", out.State)
	require.Equal(t, "1 Elm St", out.Street)
}

func TestAddressDropsInvalidZip(t *testing.T) {
	out := normalize.Address(normalize.Raw{Zipcode: "abcde"}, 0, 0)
	require.Equal(t, "", out.Zipcode)
}

func TestAddressZipFiveDigit(t *testing.T) {
	out := normalize.Address(normalize.Raw{Zipcode: "1-0-0-0-1"}, 0, 0)
	require.Equal(t, "10001", out.Zipcode)
}

func TestAddressIdempotent(t *testing.T) {
	raw := normalize.Raw{
		Street: "  456 Oak Ave  ", City: "boston", County: "Suffolk County",
		State: "MA", Zipcode: "02108", Confidence: normalize.ConfidenceLow,
	}
	once := normalize.Address(raw, 42.36, -71.06)

	// Feed the normalized output back through as a Raw; the result must
	// not change (idempotence invariant).
	again := normalize.Address(normalize.Raw{
		Street: once.Street, City: once.City, County: once.County,
		State: once.State, Zipcode: once.Zipcode, Confidence: once.Confidence,
	}, 42.36, -71.06)

	require.Equal(t, once.Street, again.Street)
	require.Equal(t, once.City, again.City)
	require.Equal(t, once.County, again.County)
	require.Equal(t, once.State, again.State)
	require.Equal(t, once.Zipcode, again.Zipcode)
}

func TestAddressCulturalRegionIsSuggestionOnly(t *testing.T) {
	out := normalize.Address(normalize.Raw{State: "TX"}, 0, 0)
	require.Equal(t, "Gulf South", out.CulturalRegion)
}

func TestResolveStateEmpty(t *testing.T) {
	_, ok := normalize.ResolveState("")
	require.False(t, ok)
}

func TestResolveStateByCode(t *testing.T) {
	code, ok := normalize.ResolveState("ny")
	require.True(t, ok)
	require.Equal(t, "NY", code)
}

func TestCensusRegionUnknownState(t *testing.T) {
	_, _, ok := normalize.CensusRegion("ZZ")
	require.False(t, ok)
}
