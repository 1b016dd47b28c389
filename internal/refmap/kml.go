package refmap

import (
	"encoding/json"
	"encoding/xml"
	"os"
	"strconv"
	"strings"
)

// kmlDocument models the small subset of OGC KML this engine reads:
// Placemarks nested directly under Document or Folder, each with an
// optional name/description and exactly one Point geometry.
type kmlDocument struct {
	XMLName  xml.Name        `xml:"kml"`
	Document kmlFeatureGroup `xml:"Document"`
}

type kmlFeatureGroup struct {
	Placemarks []kmlPlacemark `xml:"Placemark"`
	Folders    []kmlFolder    `xml:"Folder"`
}

type kmlFolder struct {
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name         string            `xml:"name"`
	Description  string            `xml:"description"`
	Point        kmlPoint          `xml:"Point"`
	ExtendedData []kmlExtendedData `xml:"ExtendedData>Data"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

type kmlExtendedData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

func parseKML(path string) ([]rawPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc kmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	all := append([]kmlPlacemark{}, doc.Document.Placemarks...)
	for _, f := range doc.Document.Folders {
		all = append(all, f.Placemarks...)
	}

	points := make([]rawPoint, 0, len(all))
	for _, pm := range all {
		lat, lng, ok := parseKMLCoordinates(pm.Point.Coordinates)
		if !ok {
			continue
		}

		fields := make(map[string]string, len(pm.ExtendedData))
		for _, d := range pm.ExtendedData {
			fields[strings.ToLower(d.Name)] = d.Value
		}

		raw, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}

		points = append(points, rawPoint{
			Name:            pm.Name,
			Description:     pm.Description,
			Lat:             lat,
			Lng:             lng,
			State:           fields["state"],
			Category:        fields["category"],
			RawMetadataJSON: string(raw),
		})
	}
	return points, nil
}

// parseKMLCoordinates reads KML's "lng,lat[,alt]" ordering, the same
// lng-first order as GeoJSON and the inverse of the lat/lng order of
// the GPX and CSV inputs.
func parseKMLCoordinates(raw string) (lat, lng float64, ok bool) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	lngVal, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	latVal, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return latVal, lngVal, true
}
