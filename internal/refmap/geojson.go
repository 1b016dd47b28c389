package refmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var errNotPointGeometry = errors.New("refmap: geojson feature geometry is not Point")

type geoJSONFeatureCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Geometry   geoJSONGeometry        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func parseGeoJSON(path string) ([]rawPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc geoJSONFeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, err
	}

	points := make([]rawPoint, 0, len(fc.Features))
	for _, f := range fc.Features {
		lat, lng, err := geoJSONPointCoords(f.Geometry)
		if err != nil {
			if errors.Is(err, errNotPointGeometry) {
				continue
			}
			return nil, err
		}

		rp := rawPoint{Lat: lat, Lng: lng}
		if name, ok := f.Properties["name"].(string); ok {
			rp.Name = name
		}
		if desc, ok := f.Properties["description"].(string); ok {
			rp.Description = desc
		}
		if state, ok := f.Properties["state"].(string); ok {
			rp.State = state
		}
		if category, ok := f.Properties["category"].(string); ok {
			rp.Category = category
		}
		if aka, ok := f.Properties["aka"].([]interface{}); ok {
			for _, v := range aka {
				if s, ok := v.(string); ok {
					rp.AkaNames = append(rp.AkaNames, s)
				}
			}
		}

		raw, err := json.Marshal(f.Properties)
		if err != nil {
			return nil, err
		}
		rp.RawMetadataJSON = string(raw)

		points = append(points, rp)
	}
	return points, nil
}

// geoJSONPointCoords reads GeoJSON's [lng, lat] ordering per RFC 7946.
func geoJSONPointCoords(g geoJSONGeometry) (lat, lng float64, err error) {
	if g.Type != "Point" {
		return 0, 0, errNotPointGeometry
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return 0, 0, fmt.Errorf("refmap: geojson Point coordinates: %w", err)
	}
	if len(coords) < 2 {
		return 0, 0, fmt.Errorf("refmap: geojson Point has %d coordinates, want 2", len(coords))
	}
	return coords[1], coords[0], nil
}
