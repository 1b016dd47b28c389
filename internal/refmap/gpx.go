package refmap

import (
	"encoding/xml"
	"os"
)

// gpxDocument models GPX 1.1 waypoints; routes and tracks are not
// pins and are out of scope for reference points.
type gpxDocument struct {
	XMLName   xml.Name   `xml:"gpx"`
	Waypoints []gpxPoint `xml:"wpt"`
}

type gpxPoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lng  float64 `xml:"lon,attr"`
	Name string  `xml:"name"`
	Desc string  `xml:"desc"`
	Type string  `xml:"type"`
}

func parseGPX(path string) ([]rawPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc gpxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	points := make([]rawPoint, 0, len(doc.Waypoints))
	for _, wpt := range doc.Waypoints {
		points = append(points, rawPoint{
			Name:        wpt.Name,
			Description: wpt.Desc,
			Lat:         wpt.Lat,
			Lng:         wpt.Lng,
			Category:    wpt.Type,
		})
	}
	return points, nil
}
