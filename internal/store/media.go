package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting the
// scanImage/scanVideo/scanPlainMedia helpers serve single-row lookups
// and ListMediaByLocation's row iteration alike.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaRows(rows *sql.Rows, kind MediaKind) (*Media, error) {
	switch kind {
	case MediaImage:
		return scanImage(rows)
	case MediaVideo:
		return scanVideo(rows)
	default:
		return scanPlainMedia(rows, kind)
	}
}

// tableFor maps a media kind to its backing table name.
func tableFor(kind MediaKind) (string, error) {
	switch kind {
	case MediaImage:
		return "images", nil
	case MediaVideo:
		return "videos", nil
	case MediaDocument:
		return "documents", nil
	case MediaMap:
		return "maps", nil
	default:
		return "", fmt.Errorf("store: unknown media kind %q", kind)
	}
}

// PutMedia inserts or updates one media record in its kind table.
// Fingerprint is the primary key, so re-ingesting the same bytes is
// idempotent — an ON CONFLICT update rather than a new row, matching
// the dedup-by-fingerprint invariant
func (s *Store) PutMedia(ctx context.Context, m *Media) error {
	return putMedia(ctx, s.DB, m)
}

// PutMedia inserts or updates one media record within an open
// transaction, used by the finalizer to commit every row of a session
// atomically
func (t *Tx) PutMedia(ctx context.Context, m *Media) error {
	return putMedia(ctx, t.tx, m)
}

func putMedia(ctx context.Context, db execer, m *Media) error {
	table, err := tableFor(m.Kind)
	if err != nil {
		return err
	}
	if m.ImportedAt.IsZero() {
		m.ImportedAt = nowUTC()
	}

	switch m.Kind {
	case MediaImage:
		_, err = db.ExecContext(ctx, `
			INSERT INTO images (
				fingerprint, original_filename, archive_filename, original_path, archive_path,
				location_id, sublocation_id, importer, imported_at, size_bytes,
				width, height, capture_date, gps_lat, gps_lng, camera,
				thumb_small_path, thumb_large_path, preview_path,
				hidden, hidden_reason, is_live_photo, contributed, contribution_source, xmp_synced
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(fingerprint) DO UPDATE SET
				location_id=excluded.location_id, sublocation_id=excluded.sublocation_id,
				archive_filename=excluded.archive_filename, archive_path=excluded.archive_path,
				width=excluded.width, height=excluded.height, capture_date=excluded.capture_date,
				gps_lat=excluded.gps_lat, gps_lng=excluded.gps_lng, camera=excluded.camera,
				thumb_small_path=excluded.thumb_small_path, thumb_large_path=excluded.thumb_large_path,
				preview_path=excluded.preview_path, hidden=excluded.hidden, hidden_reason=excluded.hidden_reason,
				is_live_photo=excluded.is_live_photo, contributed=excluded.contributed,
				contribution_source=excluded.contribution_source, xmp_synced=excluded.xmp_synced
		`,
			m.Fingerprint, m.OriginalFilename, m.ArchiveFilename, m.OriginalPath, m.ArchivePath,
			m.LocationID, nullStr(m.SublocationID), m.Importer, formatTime(m.ImportedAt), m.SizeBytes,
			m.Width, m.Height, timePtrToNull(m.CaptureDate), m.GPSLat, m.GPSLng, nullStr(m.Camera),
			nullStr(m.ThumbSmallPath), nullStr(m.ThumbLargePath), nullStr(m.PreviewPath),
			m.Hidden, nullStr(m.HiddenReason), m.IsLivePhoto, m.Contributed, nullStr(m.ContributionSource), m.XMPSynced,
		)
	case MediaVideo:
		_, err = db.ExecContext(ctx, `
			INSERT INTO videos (
				fingerprint, original_filename, archive_filename, original_path, archive_path,
				location_id, sublocation_id, importer, imported_at, size_bytes,
				width, height, duration_seconds, codec, capture_date, gps_lat, gps_lng, camera,
				poster_path, proxy_path,
				hidden, hidden_reason, is_live_photo, contributed, contribution_source, xmp_synced
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(fingerprint) DO UPDATE SET
				location_id=excluded.location_id, sublocation_id=excluded.sublocation_id,
				archive_filename=excluded.archive_filename, archive_path=excluded.archive_path,
				width=excluded.width, height=excluded.height, duration_seconds=excluded.duration_seconds,
				codec=excluded.codec, capture_date=excluded.capture_date,
				gps_lat=excluded.gps_lat, gps_lng=excluded.gps_lng, camera=excluded.camera,
				poster_path=excluded.poster_path, proxy_path=excluded.proxy_path,
				hidden=excluded.hidden, hidden_reason=excluded.hidden_reason,
				is_live_photo=excluded.is_live_photo, contributed=excluded.contributed,
				contribution_source=excluded.contribution_source, xmp_synced=excluded.xmp_synced
		`,
			m.Fingerprint, m.OriginalFilename, m.ArchiveFilename, m.OriginalPath, m.ArchivePath,
			m.LocationID, nullStr(m.SublocationID), m.Importer, formatTime(m.ImportedAt), m.SizeBytes,
			m.Width, m.Height, m.DurationSeconds, nullStr(m.Codec), timePtrToNull(m.CaptureDate),
			m.GPSLat, m.GPSLng, nullStr(m.Camera), nullStr(m.PosterPath), nullStr(m.ProxyPath),
			m.Hidden, nullStr(m.HiddenReason), m.IsLivePhoto, m.Contributed, nullStr(m.ContributionSource), m.XMPSynced,
		)
	case MediaDocument, MediaMap:
		_, err = db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (
				fingerprint, original_filename, archive_filename, original_path, archive_path,
				location_id, sublocation_id, importer, imported_at, size_bytes,
				hidden, hidden_reason, contributed, contribution_source, xmp_synced
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(fingerprint) DO UPDATE SET
				location_id=excluded.location_id, sublocation_id=excluded.sublocation_id,
				archive_filename=excluded.archive_filename, archive_path=excluded.archive_path,
				hidden=excluded.hidden, hidden_reason=excluded.hidden_reason,
				contributed=excluded.contributed, contribution_source=excluded.contribution_source,
				xmp_synced=excluded.xmp_synced
		`, table),
			m.Fingerprint, m.OriginalFilename, m.ArchiveFilename, m.OriginalPath, m.ArchivePath,
			m.LocationID, nullStr(m.SublocationID), m.Importer, formatTime(m.ImportedAt), m.SizeBytes,
			m.Hidden, nullStr(m.HiddenReason), m.Contributed, nullStr(m.ContributionSource), m.XMPSynced,
		)
	}
	if err != nil {
		return fmt.Errorf("store: put media (%s): %w", table, err)
	}
	return nil
}

// FindMediaByFingerprint looks up a media record in the table for kind
// only; the other three kind tables are not searched. A hit in more
// than one table would violate the global
// fingerprint-uniqueness invariant and is treated as caller error
// upstream (the finalizer only ever writes to one table per digest).
func (s *Store) FindMediaByFingerprint(ctx context.Context, kind MediaKind, fingerprint string) (*Media, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case MediaImage:
		row := s.DB.QueryRowContext(ctx, `
			SELECT fingerprint, original_filename, archive_filename, original_path, archive_path,
				location_id, sublocation_id, importer, imported_at, size_bytes,
				width, height, capture_date, gps_lat, gps_lng, camera,
				thumb_small_path, thumb_large_path, preview_path,
				hidden, hidden_reason, is_live_photo, contributed, contribution_source, xmp_synced
			FROM images WHERE fingerprint = ?`, fingerprint)
		return scanImage(row)
	case MediaVideo:
		row := s.DB.QueryRowContext(ctx, `
			SELECT fingerprint, original_filename, archive_filename, original_path, archive_path,
				location_id, sublocation_id, importer, imported_at, size_bytes,
				width, height, duration_seconds, codec, capture_date, gps_lat, gps_lng, camera,
				poster_path, proxy_path,
				hidden, hidden_reason, is_live_photo, contributed, contribution_source, xmp_synced
			FROM videos WHERE fingerprint = ?`, fingerprint)
		return scanVideo(row)
	default:
		row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT fingerprint, original_filename, archive_filename, original_path, archive_path,
				location_id, sublocation_id, importer, imported_at, size_bytes,
				hidden, hidden_reason, contributed, contribution_source, xmp_synced
			FROM %s WHERE fingerprint = ?`, table), fingerprint)
		return scanPlainMedia(row, kind)
	}
}

func scanImage(row rowScanner) (*Media, error) {
	var m Media
	m.Kind = MediaImage
	var sublocationID, captureDate, camera, thumbSmall, thumbLarge, preview, hiddenReason, contribSource sql.NullString
	var importedAt string
	err := row.Scan(
		&m.Fingerprint, &m.OriginalFilename, &m.ArchiveFilename, &m.OriginalPath, &m.ArchivePath,
		&m.LocationID, &sublocationID, &m.Importer, &importedAt, &m.SizeBytes,
		&m.Width, &m.Height, &captureDate, &m.GPSLat, &m.GPSLng, &camera,
		&thumbSmall, &thumbLarge, &preview,
		&m.Hidden, &hiddenReason, &m.IsLivePhoto, &m.Contributed, &contribSource, &m.XMPSynced,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan image: %w", err)
	}
	m.SublocationID = sublocationID.String
	m.Camera = camera.String
	m.ThumbSmallPath = thumbSmall.String
	m.ThumbLargePath = thumbLarge.String
	m.PreviewPath = preview.String
	m.HiddenReason = hiddenReason.String
	m.ContributionSource = contribSource.String
	m.ImportedAt = mustParseTime(importedAt)
	m.CaptureDate = parseNullTime(captureDate)
	return &m, nil
}

func scanVideo(row rowScanner) (*Media, error) {
	var m Media
	m.Kind = MediaVideo
	var sublocationID, codec, captureDate, camera, poster, proxy, hiddenReason, contribSource sql.NullString
	var importedAt string
	err := row.Scan(
		&m.Fingerprint, &m.OriginalFilename, &m.ArchiveFilename, &m.OriginalPath, &m.ArchivePath,
		&m.LocationID, &sublocationID, &m.Importer, &importedAt, &m.SizeBytes,
		&m.Width, &m.Height, &m.DurationSeconds, &codec, &captureDate, &m.GPSLat, &m.GPSLng, &camera,
		&poster, &proxy,
		&m.Hidden, &hiddenReason, &m.IsLivePhoto, &m.Contributed, &contribSource, &m.XMPSynced,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan video: %w", err)
	}
	m.SublocationID = sublocationID.String
	m.Codec = codec.String
	m.Camera = camera.String
	m.PosterPath = poster.String
	m.ProxyPath = proxy.String
	m.HiddenReason = hiddenReason.String
	m.ContributionSource = contribSource.String
	m.ImportedAt = mustParseTime(importedAt)
	m.CaptureDate = parseNullTime(captureDate)
	return &m, nil
}

func scanPlainMedia(row rowScanner, kind MediaKind) (*Media, error) {
	var m Media
	m.Kind = kind
	var sublocationID, hiddenReason, contribSource sql.NullString
	var importedAt string
	err := row.Scan(
		&m.Fingerprint, &m.OriginalFilename, &m.ArchiveFilename, &m.OriginalPath, &m.ArchivePath,
		&m.LocationID, &sublocationID, &m.Importer, &importedAt, &m.SizeBytes,
		&m.Hidden, &hiddenReason, &m.Contributed, &contribSource, &m.XMPSynced,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan %s: %w", kind, err)
	}
	m.SublocationID = sublocationID.String
	m.HiddenReason = hiddenReason.String
	m.ContributionSource = contribSource.String
	m.ImportedAt = mustParseTime(importedAt)
	return &m, nil
}

// SetHidden marks a media record hidden/visible with a reason, used by
// the live-photo pairing job to hide a pair's video component.
func (s *Store) SetHidden(ctx context.Context, kind MediaKind, fingerprint string, hidden bool, reason string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET hidden = ?, hidden_reason = ? WHERE fingerprint = ?`, table),
		hidden, nullStr(reason), fingerprint,
	)
	return err
}

// ListMediaByLocation returns every media row of one kind filed under
// a location, used by the BagIt refresh to sum payload size/count
// and by the live-photo pairing job.
func (s *Store) ListMediaByLocation(ctx context.Context, kind MediaKind, locationID string) ([]*Media, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var query string
	switch kind {
	case MediaImage:
		query = `SELECT fingerprint, original_filename, archive_filename, original_path, archive_path,
			location_id, sublocation_id, importer, imported_at, size_bytes,
			width, height, capture_date, gps_lat, gps_lng, camera,
			thumb_small_path, thumb_large_path, preview_path,
			hidden, hidden_reason, is_live_photo, contributed, contribution_source, xmp_synced
			FROM images WHERE location_id = ?`
	case MediaVideo:
		query = `SELECT fingerprint, original_filename, archive_filename, original_path, archive_path,
			location_id, sublocation_id, importer, imported_at, size_bytes,
			width, height, duration_seconds, codec, capture_date, gps_lat, gps_lng, camera,
			poster_path, proxy_path,
			hidden, hidden_reason, is_live_photo, contributed, contribution_source, xmp_synced
			FROM videos WHERE location_id = ?`
	default:
		query = fmt.Sprintf(`SELECT fingerprint, original_filename, archive_filename, original_path, archive_path,
			location_id, sublocation_id, importer, imported_at, size_bytes,
			hidden, hidden_reason, contributed, contribution_source, xmp_synced
			FROM %s WHERE location_id = ?`, table)
	}

	rows, err := s.DB.QueryContext(ctx, query, locationID)
	if err != nil {
		return nil, fmt.Errorf("store: list %s by location: %w", table, err)
	}
	defer rows.Close()

	var out []*Media
	for rows.Next() {
		m, err := scanMediaRows(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateImageMetadata applies the fields the exiftool collaborator job
// extracts to an already-indexed image row.
func (s *Store) UpdateImageMetadata(ctx context.Context, fingerprint string, width, height *int, captureDate *time.Time, gpsLat, gpsLng *float64, camera string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE images SET width = ?, height = ?, capture_date = ?, gps_lat = ?, gps_lng = ?, camera = ?
		WHERE fingerprint = ?
	`, width, height, timePtrToNull(captureDate), gpsLat, gpsLng, nullStr(camera), fingerprint)
	if err != nil {
		return fmt.Errorf("store: update image metadata: %w", err)
	}
	return nil
}

// UpdateVideoMetadata applies the fields the ffprobe collaborator job
// extracts to an already-indexed video row.
func (s *Store) UpdateVideoMetadata(ctx context.Context, fingerprint string, width, height *int, durationSeconds *float64, codec string, gpsLat, gpsLng *float64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE videos SET width = ?, height = ?, duration_seconds = ?, codec = ?, gps_lat = ?, gps_lng = ?
		WHERE fingerprint = ?
	`, width, height, durationSeconds, nullStr(codec), gpsLat, gpsLng, fingerprint)
	if err != nil {
		return fmt.Errorf("store: update video metadata: %w", err)
	}
	return nil
}

// UpdateImageThumbPaths records a rendered thumbnail/preview path for
// an image row, used by the thumbnail collaborator job.
func (s *Store) UpdateImageThumbPaths(ctx context.Context, fingerprint, thumbSmall, thumbLarge, preview string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE images SET thumb_small_path = ?, thumb_large_path = ?, preview_path = ?
		WHERE fingerprint = ?
	`, nullStr(thumbSmall), nullStr(thumbLarge), nullStr(preview), fingerprint)
	if err != nil {
		return fmt.Errorf("store: update image thumb paths: %w", err)
	}
	return nil
}

// UpdateVideoDerived records a rendered poster/proxy path for a video
// row, used by the thumbnail and video-proxy collaborator jobs.
func (s *Store) UpdateVideoDerived(ctx context.Context, fingerprint, posterPath, proxyPath string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE videos SET poster_path = COALESCE(NULLIF(?, ''), poster_path), proxy_path = COALESCE(NULLIF(?, ''), proxy_path)
		WHERE fingerprint = ?
	`, posterPath, proxyPath, fingerprint)
	if err != nil {
		return fmt.Errorf("store: update video derived paths: %w", err)
	}
	return nil
}

// SetLivePhoto flips a media row's is_live_photo flag, used by the
// live-photo pairing job once exif/probe capture times are available.
func (s *Store) SetLivePhoto(ctx context.Context, kind MediaKind, fingerprint string, isLivePhoto bool) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET is_live_photo = ? WHERE fingerprint = ?`, table),
		isLivePhoto, fingerprint,
	)
	return err
}

// CountByLocation returns the number of media rows (across all four
// kind tables) filed under a location. The location-stats job does not
// call it; RefreshLocationStats computes its own per-kind counts.
func (s *Store) CountByLocation(ctx context.Context, locationID string) (int, error) {
	var total int
	for _, table := range []string{"images", "videos", "documents", "maps"} {
		var n int
		err := s.DB.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE location_id = ?`, table), locationID,
		).Scan(&n)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
