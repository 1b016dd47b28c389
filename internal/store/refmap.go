package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PutReferenceMap inserts or updates the header row for one ingested
// external pin file (KML/GPX/GeoJSON/CSV)
func (s *Store) PutReferenceMap(ctx context.Context, m *ReferenceMap) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = nowUTC()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO reference_maps (id, file_path, kind, point_count, created_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			file_path=excluded.file_path, kind=excluded.kind, point_count=excluded.point_count
	`, m.ID, m.FilePath, m.Kind, m.PointCount, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: put reference map: %w", err)
	}
	return nil
}

// PutReferencePoint inserts or updates one pin within a reference map.
// LinkedLocationID may be empty ("unlinked"); a non-empty value means
// this pin has been reconciled against a real location and must not
// also appear as an unlinked candidate — callers enforce this by
// always writing LinkedLocationID through this single path rather than
// through a separate unlinked-layer table.
func (s *Store) PutReferencePoint(ctx context.Context, p *ReferencePoint) error {
	aka, err := json.Marshal(p.AkaNames)
	if err != nil {
		return fmt.Errorf("store: marshal aka names: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO reference_points (
			id, map_id, name, description, lat, lng, state, category,
			aka_names_json, linked_location_id, raw_metadata_json
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, lat=excluded.lat, lng=excluded.lng,
			state=excluded.state, category=excluded.category, aka_names_json=excluded.aka_names_json,
			linked_location_id=excluded.linked_location_id, raw_metadata_json=excluded.raw_metadata_json
	`,
		p.ID, p.MapID, nullStr(p.Name), nullStr(p.Description), p.Lat, p.Lng,
		nullStr(p.State), nullStr(p.Category), string(aka), nullStr(p.LinkedLocationID), nullStr(p.RawMetadataJSON),
	)
	if err != nil {
		return fmt.Errorf("store: put reference point: %w", err)
	}
	return nil
}

// LinkReferencePoint ties an existing reference point to a location,
// promoting it out of the unlinked layer.
func (s *Store) LinkReferencePoint(ctx context.Context, pointID, locationID string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE reference_points SET linked_location_id = ? WHERE id = ?`, locationID, pointID)
	return err
}

// UnlinkedReferencePoints returns every point in a map not yet tied to
// a location, the candidate set an operator reconciles against new or
// existing locations.
func (s *Store) UnlinkedReferencePoints(ctx context.Context, mapID string) ([]*ReferencePoint, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, map_id, name, description, lat, lng, state, category,
			aka_names_json, linked_location_id, raw_metadata_json
		FROM reference_points
		WHERE map_id = ? AND (linked_location_id IS NULL OR linked_location_id = '')
		ORDER BY name ASC`, mapID)
	if err != nil {
		return nil, fmt.Errorf("store: list unlinked reference points: %w", err)
	}
	defer rows.Close()

	var points []*ReferencePoint
	for rows.Next() {
		p, err := scanReferencePoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func scanReferencePoint(rows *sql.Rows) (*ReferencePoint, error) {
	var p ReferencePoint
	var name, description, state, category, akaJSON, linkedLocationID, rawMetadata sql.NullString
	err := rows.Scan(
		&p.ID, &p.MapID, &name, &description, &p.Lat, &p.Lng, &state, &category,
		&akaJSON, &linkedLocationID, &rawMetadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan reference point: %w", err)
	}
	p.Name = name.String
	p.Description = description.String
	p.State = state.String
	p.Category = category.String
	p.LinkedLocationID = linkedLocationID.String
	p.RawMetadataJSON = rawMetadata.String
	if akaJSON.Valid && akaJSON.String != "" {
		if err := json.Unmarshal([]byte(akaJSON.String), &p.AkaNames); err != nil {
			return nil, fmt.Errorf("store: unmarshal aka names: %w", err)
		}
	}
	return &p, nil
}
