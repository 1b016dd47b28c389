package refmap

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// parseCSV reads a header row of column names, matched case-
// insensitively against name/description/lat/lng/state/category/aka;
// unrecognized columns are carried through as raw metadata rather than
// dropped. aka is a single field, semicolon-separated.
func parseCSV(path string) ([]rawPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("refmap: read csv header: %w", err)
	}
	colIndex := make(map[string]int, len(header))
	for i, h := range header {
		colIndex[strings.ToLower(strings.TrimSpace(h))] = i
	}

	latCol, ok := colIndex["lat"]
	if !ok {
		return nil, fmt.Errorf("refmap: csv missing required column %q", "lat")
	}
	lngCol, ok := colIndex["lng"]
	if !ok {
		lngCol, ok = colIndex["lon"]
	}
	if !ok {
		return nil, fmt.Errorf("refmap: csv missing required column %q", "lng")
	}

	var points []rawPoint
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("refmap: read csv row: %w", err)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(field(record, latCol)), 64)
		if err != nil {
			return nil, fmt.Errorf("refmap: parse lat %q: %w", field(record, latCol), err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(field(record, lngCol)), 64)
		if err != nil {
			return nil, fmt.Errorf("refmap: parse lng %q: %w", field(record, lngCol), err)
		}

		rp := rawPoint{Lat: lat, Lng: lng}
		raw := make(map[string]string, len(header))
		for name, idx := range colIndex {
			value := field(record, idx)
			raw[name] = value
			switch name {
			case "name":
				rp.Name = value
			case "description":
				rp.Description = value
			case "state":
				rp.State = value
			case "category":
				rp.Category = value
			case "aka":
				if value != "" {
					for _, part := range strings.Split(value, ";") {
						if trimmed := strings.TrimSpace(part); trimmed != "" {
							rp.AkaNames = append(rp.AkaNames, trimmed)
						}
					}
				}
			}
		}

		rawJSON, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		rp.RawMetadataJSON = string(rawJSON)

		points = append(points, rp)
	}
	return points, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}
