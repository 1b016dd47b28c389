// Package refmap ingests external pin files (KML, GPX, GeoJSON, CSV)
// into reference maps and reference points. Validation and
// persistence live here because no other package owns untrusted
// geographic input.
package refmap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bizzlechizzle/au-archive/internal/store"
)

// ErrUnsupportedKind is returned for a file extension refmap does not
// know how to parse.
var ErrUnsupportedKind = errors.New("refmap: unsupported file kind")

// ErrInvalidCoordinate is returned when a parsed point's lat/lng falls
// outside the valid geographic range.
var ErrInvalidCoordinate = errors.New("refmap: lat/lng out of range")

// rawPoint is the format-agnostic shape every parser produces before
// validation and ID assignment.
type rawPoint struct {
	Name            string
	Description     string
	Lat             float64
	Lng             float64
	State           string
	Category        string
	AkaNames        []string
	RawMetadataJSON string
}

func kindForPath(path string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "kml":
		return "kml", nil
	case "gpx":
		return "gpx", nil
	case "geojson", "json":
		return "geojson", nil
	case "csv":
		return "csv", nil
	default:
		return "", ErrUnsupportedKind
	}
}

func parseFile(kind, path string) ([]rawPoint, error) {
	switch kind {
	case "kml":
		return parseKML(path)
	case "gpx":
		return parseGPX(path)
	case "geojson":
		return parseGeoJSON(path)
	case "csv":
		return parseCSV(path)
	default:
		return nil, ErrUnsupportedKind
	}
}

func validateCoordinate(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidCoordinate, lat, lng)
	}
	return nil
}

// ImportMap parses an external pin file and persists it as a
// reference map plus its reference points. Every point starts
// unlinked (LinkedLocationID empty); an operator later reconciles
// candidates against real locations via store.LinkReferencePoint.
func ImportMap(ctx context.Context, st *store.Store, path string) (*store.ReferenceMap, []*store.ReferencePoint, error) {
	kind, err := kindForPath(path)
	if err != nil {
		return nil, nil, err
	}

	rawPoints, err := parseFile(kind, path)
	if err != nil {
		return nil, nil, fmt.Errorf("refmap: parse %s: %w", path, err)
	}

	mapID := uuid.NewString()
	points := make([]*store.ReferencePoint, 0, len(rawPoints))
	for _, rp := range rawPoints {
		if err := validateCoordinate(rp.Lat, rp.Lng); err != nil {
			return nil, nil, fmt.Errorf("refmap: %s: %w", rp.Name, err)
		}
		points = append(points, &store.ReferencePoint{
			ID:              uuid.NewString(),
			MapID:           mapID,
			Name:            rp.Name,
			Description:     rp.Description,
			Lat:             rp.Lat,
			Lng:             rp.Lng,
			State:           normalizeState(rp.State),
			Category:        rp.Category,
			AkaNames:        rp.AkaNames,
			RawMetadataJSON: rp.RawMetadataJSON,
		})
	}

	m := &store.ReferenceMap{
		ID:         mapID,
		FilePath:   path,
		Kind:       kind,
		PointCount: len(points),
	}

	if err := st.PutReferenceMap(ctx, m); err != nil {
		return nil, nil, err
	}
	for _, p := range points {
		if err := st.PutReferencePoint(ctx, p); err != nil {
			return nil, nil, err
		}
	}

	return m, points, nil
}

func normalizeState(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) != 2 {
		return raw
	}
	return strings.ToUpper(raw)
}
