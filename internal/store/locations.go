package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidState is returned when a location's state is set but is
// not exactly two uppercase letters invariant.
var ErrInvalidState = errors.New("store: state must be two uppercase letters")

// ErrInvalidGPS is returned when lat/lng fall outside their valid
// ranges invariant.
var ErrInvalidGPS = errors.New("store: gps coordinates out of range")

func validateLocation(loc *Location) error {
	if loc.State != "" && !isTwoUpper(loc.State) {
		return ErrInvalidState
	}
	if loc.GPSLat != nil && (*loc.GPSLat < -90 || *loc.GPSLat > 90) {
		return ErrInvalidGPS
	}
	if loc.GPSLng != nil && (*loc.GPSLng < -180 || *loc.GPSLng > 180) {
		return ErrInvalidGPS
	}
	return nil
}

func isTwoUpper(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// PutLocation inserts or updates a location row.
func (s *Store) PutLocation(ctx context.Context, loc *Location) error {
	if err := validateLocation(loc); err != nil {
		return err
	}
	now := time.Now().UTC()
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = now
	}
	loc.UpdatedAt = now
	if loc.StatusChangedAt.IsZero() {
		loc.StatusChangedAt = now
	}
	if loc.BagStatus == "" {
		loc.BagStatus = "none"
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO locations (
			id, short_id, display_name, short_name, state, type,
			gps_lat, gps_lng, gps_accuracy, gps_source, gps_verified,
			addr_street, addr_city, addr_county, addr_state, addr_zip, addr_confidence, addr_geocoded_at,
			flag_historic, flag_favorite, flag_host_only, hero_fingerprint,
			bag_status, bag_last_verified, bag_last_error,
			created_at, updated_at, status_changed_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			short_id=excluded.short_id, display_name=excluded.display_name, short_name=excluded.short_name,
			state=excluded.state, type=excluded.type,
			gps_lat=excluded.gps_lat, gps_lng=excluded.gps_lng, gps_accuracy=excluded.gps_accuracy,
			gps_source=excluded.gps_source, gps_verified=excluded.gps_verified,
			addr_street=excluded.addr_street, addr_city=excluded.addr_city, addr_county=excluded.addr_county,
			addr_state=excluded.addr_state, addr_zip=excluded.addr_zip, addr_confidence=excluded.addr_confidence,
			addr_geocoded_at=excluded.addr_geocoded_at,
			flag_historic=excluded.flag_historic, flag_favorite=excluded.flag_favorite, flag_host_only=excluded.flag_host_only,
			hero_fingerprint=excluded.hero_fingerprint,
			bag_status=excluded.bag_status, bag_last_verified=excluded.bag_last_verified, bag_last_error=excluded.bag_last_error,
			updated_at=excluded.updated_at, status_changed_at=excluded.status_changed_at
	`,
		loc.ID, loc.ShortID, loc.DisplayName, loc.ShortName, nullStr(loc.State), loc.Type,
		loc.GPSLat, loc.GPSLng, loc.GPSAccuracy, nullStr(loc.GPSSource), loc.GPSVerified,
		nullStr(loc.AddrStreet), nullStr(loc.AddrCity), nullStr(loc.AddrCounty), nullStr(loc.AddrState),
		nullStr(loc.AddrZip), nullStr(loc.AddrConfidence), timePtrToNull(loc.AddrGeocodedAt),
		loc.FlagHistoric, loc.FlagFavorite, loc.FlagHostOnly, nullStr(loc.HeroFingerprint),
		loc.BagStatus, timePtrToNull(loc.BagLastVerified), nullStr(loc.BagLastError),
		formatTime(loc.CreatedAt), formatTime(loc.UpdatedAt), formatTime(loc.StatusChangedAt),
	)
	if err != nil {
		return fmt.Errorf("store: put location: %w", err)
	}
	return nil
}

// GetLocation fetches a location by id.
func (s *Store) GetLocation(ctx context.Context, id string) (*Location, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, short_id, display_name, short_name, state, type,
			gps_lat, gps_lng, gps_accuracy, gps_source, gps_verified,
			addr_street, addr_city, addr_county, addr_state, addr_zip, addr_confidence, addr_geocoded_at,
			flag_historic, flag_favorite, flag_host_only, hero_fingerprint,
			bag_status, bag_last_verified, bag_last_error,
			stats_image_count, stats_video_count, stats_document_count, stats_map_count,
			stats_total_bytes, stats_refreshed_at,
			created_at, updated_at, status_changed_at
		FROM locations WHERE id = ?`, id)
	return scanLocation(row)
}

// GetLocationByShortID fetches a location by its filesystem-facing
// short id, used by the path service and the copier.
func (s *Store) GetLocationByShortID(ctx context.Context, shortID string) (*Location, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, short_id, display_name, short_name, state, type,
			gps_lat, gps_lng, gps_accuracy, gps_source, gps_verified,
			addr_street, addr_city, addr_county, addr_state, addr_zip, addr_confidence, addr_geocoded_at,
			flag_historic, flag_favorite, flag_host_only, hero_fingerprint,
			bag_status, bag_last_verified, bag_last_error,
			stats_image_count, stats_video_count, stats_document_count, stats_map_count,
			stats_total_bytes, stats_refreshed_at,
			created_at, updated_at, status_changed_at
		FROM locations WHERE short_id = ?`, shortID)
	return scanLocation(row)
}

// ListLocations returns every location row, ordered by id, for
// operator tooling that must walk the full archive (e.g.
// archive-migrate's filesystem reconciliation pass).
func (s *Store) ListLocations(ctx context.Context) ([]*Location, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, short_id, display_name, short_name, state, type,
			gps_lat, gps_lng, gps_accuracy, gps_source, gps_verified,
			addr_street, addr_city, addr_county, addr_state, addr_zip, addr_confidence, addr_geocoded_at,
			flag_historic, flag_favorite, flag_host_only, hero_fingerprint,
			bag_status, bag_last_verified, bag_last_error,
			stats_image_count, stats_video_count, stats_document_count, stats_map_count,
			stats_total_bytes, stats_refreshed_at,
			created_at, updated_at, status_changed_at
		FROM locations ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list locations: %w", err)
	}
	defer rows.Close()

	var out []*Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// scanLocation serves both GetLocation's single-row lookups (*sql.Row)
// and ListLocations' multi-row walk (*sql.Rows) via the shared
// rowScanner interface defined in media.go.
func scanLocation(row rowScanner) (*Location, error) {
	var loc Location
	var state, gpsSource, addrStreet, addrCity, addrCounty, addrState, addrZip, addrConfidence sql.NullString
	var heroFP, bagLastError sql.NullString
	var addrGeocodedAt, bagLastVerified, statsRefreshedAt sql.NullString
	var createdAt, updatedAt, statusChangedAt string

	err := row.Scan(
		&loc.ID, &loc.ShortID, &loc.DisplayName, &loc.ShortName, &state, &loc.Type,
		&loc.GPSLat, &loc.GPSLng, &loc.GPSAccuracy, &gpsSource, &loc.GPSVerified,
		&addrStreet, &addrCity, &addrCounty, &addrState, &addrZip, &addrConfidence, &addrGeocodedAt,
		&loc.FlagHistoric, &loc.FlagFavorite, &loc.FlagHostOnly, &heroFP,
		&loc.BagStatus, &bagLastVerified, &bagLastError,
		&loc.StatsImageCount, &loc.StatsVideoCount, &loc.StatsDocumentCount, &loc.StatsMapCount,
		&loc.StatsTotalBytes, &statsRefreshedAt,
		&createdAt, &updatedAt, &statusChangedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan location: %w", err)
	}

	loc.State = state.String
	loc.GPSSource = gpsSource.String
	loc.AddrStreet = addrStreet.String
	loc.AddrCity = addrCity.String
	loc.AddrCounty = addrCounty.String
	loc.AddrState = addrState.String
	loc.AddrZip = addrZip.String
	loc.AddrConfidence = addrConfidence.String
	loc.HeroFingerprint = heroFP.String
	loc.BagLastError = bagLastError.String
	loc.AddrGeocodedAt = parseNullTime(addrGeocodedAt)
	loc.BagLastVerified = parseNullTime(bagLastVerified)
	loc.StatsRefreshedAt = parseNullTime(statsRefreshedAt)
	loc.CreatedAt = mustParseTime(createdAt)
	loc.UpdatedAt = mustParseTime(updatedAt)
	loc.StatusChangedAt = mustParseTime(statusChangedAt)

	return &loc, nil
}

// RefreshLocationStats recomputes the cached media counters and total
// byte size for a location by summing its four kind tables, for the
// location-stats job.
func (s *Store) RefreshLocationStats(ctx context.Context, locationID string) error {
	var images, videos, documents, maps int
	var totalBytes int64

	counts := []struct {
		table string
		n     *int
	}{
		{"images", &images},
		{"videos", &videos},
		{"documents", &documents},
		{"maps", &maps},
	}
	for _, c := range counts {
		var n int
		var bytes sql.NullInt64
		query := fmt.Sprintf(`SELECT COUNT(*), SUM(size_bytes) FROM %s WHERE location_id = ?`, c.table)
		if err := s.DB.QueryRowContext(ctx, query, locationID).Scan(&n, &bytes); err != nil {
			return fmt.Errorf("store: refresh location stats: count %s: %w", c.table, err)
		}
		*c.n = n
		totalBytes += bytes.Int64
	}

	_, err := s.DB.ExecContext(ctx, `
		UPDATE locations SET
			stats_image_count = ?, stats_video_count = ?, stats_document_count = ?, stats_map_count = ?,
			stats_total_bytes = ?, stats_refreshed_at = ?, updated_at = ?
		WHERE id = ?`,
		images, videos, documents, maps, totalBytes,
		formatTime(nowUTC()), formatTime(nowUTC()), locationID,
	)
	if err != nil {
		return fmt.Errorf("store: refresh location stats: %w", err)
	}
	return nil
}

// UpdateLocationAddress persists a reverse-geocode result against a
// location, per the geocode.reverse collaborator contract.
func (s *Store) UpdateLocationAddress(ctx context.Context, locationID, city, state, confidence string, geocodedAt time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE locations SET
			addr_city = ?, addr_state = ?, addr_confidence = ?, addr_geocoded_at = ?, updated_at = ?
		WHERE id = ?`,
		nullStr(city), nullStr(state), nullStr(confidence), formatTime(geocodedAt), formatTime(nowUTC()), locationID,
	)
	if err != nil {
		return fmt.Errorf("store: update location address: %w", err)
	}
	return nil
}

// UpdateBagStatus records the outcome of a BagIt validation pass
// against a location
func (s *Store) UpdateBagStatus(ctx context.Context, locationID, status, lastError string, verifiedAt time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE locations SET bag_status = ?, bag_last_verified = ?, bag_last_error = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(verifiedAt), nullStr(lastError), formatTime(time.Now().UTC()), locationID,
	)
	return err
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func timePtrToNull(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func mustParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
