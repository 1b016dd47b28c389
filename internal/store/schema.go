package store

import (
	"database/sql"
	"fmt"
)

// schemaVersion is the Index's current PRAGMA user_version. Bump and
// add a migration step in migrate() for every schema change;
// migrations are forward-only and safe to re-run.
const schemaVersion = 2

const schemaDDL = `
CREATE TABLE IF NOT EXISTS locations (
	id TEXT PRIMARY KEY,
	short_id TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	short_name TEXT NOT NULL,
	state TEXT,
	type TEXT NOT NULL,
	gps_lat REAL,
	gps_lng REAL,
	gps_accuracy REAL,
	gps_source TEXT,
	gps_verified INTEGER NOT NULL DEFAULT 0,
	addr_street TEXT,
	addr_city TEXT,
	addr_county TEXT,
	addr_state TEXT,
	addr_zip TEXT,
	addr_confidence TEXT,
	addr_geocoded_at TEXT,
	flag_historic INTEGER NOT NULL DEFAULT 0,
	flag_favorite INTEGER NOT NULL DEFAULT 0,
	flag_host_only INTEGER NOT NULL DEFAULT 0,
	hero_fingerprint TEXT,
	bag_status TEXT NOT NULL DEFAULT 'none',
	bag_last_verified TEXT,
	bag_last_error TEXT,
	stats_image_count INTEGER NOT NULL DEFAULT 0,
	stats_video_count INTEGER NOT NULL DEFAULT 0,
	stats_document_count INTEGER NOT NULL DEFAULT 0,
	stats_map_count INTEGER NOT NULL DEFAULT 0,
	stats_total_bytes INTEGER NOT NULL DEFAULT 0,
	stats_refreshed_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	status_changed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_locations_state ON locations(state);

CREATE TABLE IF NOT EXISTS sublocations (
	id TEXT PRIMARY KEY,
	location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	name TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sublocations_location ON sublocations(location_id);

CREATE TABLE IF NOT EXISTS images (
	fingerprint TEXT PRIMARY KEY,
	original_filename TEXT NOT NULL,
	archive_filename TEXT NOT NULL,
	original_path TEXT NOT NULL,
	archive_path TEXT NOT NULL,
	location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	sublocation_id TEXT,
	importer TEXT NOT NULL,
	imported_at TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	width INTEGER,
	height INTEGER,
	capture_date TEXT,
	gps_lat REAL,
	gps_lng REAL,
	camera TEXT,
	thumb_small_path TEXT,
	thumb_large_path TEXT,
	preview_path TEXT,
	hidden INTEGER NOT NULL DEFAULT 0,
	hidden_reason TEXT,
	is_live_photo INTEGER NOT NULL DEFAULT 0,
	contributed INTEGER NOT NULL DEFAULT 0,
	contribution_source TEXT,
	xmp_synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_images_location ON images(location_id);

CREATE TABLE IF NOT EXISTS videos (
	fingerprint TEXT PRIMARY KEY,
	original_filename TEXT NOT NULL,
	archive_filename TEXT NOT NULL,
	original_path TEXT NOT NULL,
	archive_path TEXT NOT NULL,
	location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	sublocation_id TEXT,
	importer TEXT NOT NULL,
	imported_at TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	width INTEGER,
	height INTEGER,
	duration_seconds REAL,
	codec TEXT,
	capture_date TEXT,
	gps_lat REAL,
	gps_lng REAL,
	camera TEXT,
	poster_path TEXT,
	proxy_path TEXT,
	hidden INTEGER NOT NULL DEFAULT 0,
	hidden_reason TEXT,
	is_live_photo INTEGER NOT NULL DEFAULT 0,
	contributed INTEGER NOT NULL DEFAULT 0,
	contribution_source TEXT,
	xmp_synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_videos_location ON videos(location_id);

CREATE TABLE IF NOT EXISTS documents (
	fingerprint TEXT PRIMARY KEY,
	original_filename TEXT NOT NULL,
	archive_filename TEXT NOT NULL,
	original_path TEXT NOT NULL,
	archive_path TEXT NOT NULL,
	location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	sublocation_id TEXT,
	importer TEXT NOT NULL,
	imported_at TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	hidden INTEGER NOT NULL DEFAULT 0,
	hidden_reason TEXT,
	contributed INTEGER NOT NULL DEFAULT 0,
	contribution_source TEXT,
	xmp_synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_documents_location ON documents(location_id);

CREATE TABLE IF NOT EXISTS maps (
	fingerprint TEXT PRIMARY KEY,
	original_filename TEXT NOT NULL,
	archive_filename TEXT NOT NULL,
	original_path TEXT NOT NULL,
	archive_path TEXT NOT NULL,
	location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	sublocation_id TEXT,
	importer TEXT NOT NULL,
	imported_at TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	hidden INTEGER NOT NULL DEFAULT 0,
	hidden_reason TEXT,
	contributed INTEGER NOT NULL DEFAULT 0,
	contribution_source TEXT,
	xmp_synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_maps_location ON maps(location_id);

CREATE TABLE IF NOT EXISTS imports (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	importer TEXT NOT NULL,
	copy_strategy TEXT NOT NULL,
	file_count INTEGER NOT NULL,
	byte_count INTEGER NOT NULL,
	duplicate_count INTEGER NOT NULL,
	error_count INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_imports_location ON imports(location_id);

CREATE TABLE IF NOT EXISTS import_sessions (
	session_id TEXT PRIMARY KEY,
	location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	source_paths_json TEXT NOT NULL,
	copy_strategy TEXT,
	total_files INTEGER NOT NULL DEFAULT 0,
	total_bytes INTEGER NOT NULL DEFAULT 0,
	last_step INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	resumable INTEGER NOT NULL DEFAULT 1,
	scan_result_json TEXT,
	hash_result_json TEXT,
	copy_result_json TEXT,
	validate_result_json TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_resumable ON import_sessions(resumable, status);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	queue TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 10,
	status TEXT NOT NULL DEFAULT 'pending',
	payload_json TEXT NOT NULL,
	depends_on TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 5,
	last_error TEXT,
	error TEXT,
	result_json TEXT,
	retry_after TEXT,
	locked_by TEXT,
	locked_at TEXT,
	created_at TEXT NOT NULL,
	started_at TEXT,
	completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(queue, status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_jobs_depends ON jobs(depends_on);
CREATE INDEX IF NOT EXISTS idx_jobs_locked_at ON jobs(status, locked_at);

CREATE TABLE IF NOT EXISTS job_dead_letter (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	queue TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	error TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	failed_at TEXT NOT NULL,
	acknowledged INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_dlq_job ON job_dead_letter(job_id);

CREATE TABLE IF NOT EXISTS reference_maps (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	kind TEXT NOT NULL,
	point_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reference_points (
	id TEXT PRIMARY KEY,
	map_id TEXT NOT NULL REFERENCES reference_maps(id) ON DELETE CASCADE,
	name TEXT,
	description TEXT,
	lat REAL NOT NULL,
	lng REAL NOT NULL,
	state TEXT,
	category TEXT,
	aka_names_json TEXT,
	linked_location_id TEXT REFERENCES locations(id) ON DELETE SET NULL,
	raw_metadata_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_refpoints_map ON reference_points(map_id);
CREATE INDEX IF NOT EXISTS idx_refpoints_linked ON reference_points(linked_location_id);

CREATE TABLE IF NOT EXISTS migration_history (
	module TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	source_path TEXT NOT NULL,
	migrated_at_ms INTEGER NOT NULL,
	record_count INTEGER NOT NULL,
	checksum TEXT
);
`

// requiredIndices lists index name -> defining statement, used by the
// startup pass that recreates any index missing from an older or
// hand-edited database ("migrations must detect missing
// critical indices and recreate them idempotently on startup").
var requiredIndices = map[string]string{
	"idx_locations_state":    `CREATE INDEX IF NOT EXISTS idx_locations_state ON locations(state)`,
	"idx_images_location":    `CREATE INDEX IF NOT EXISTS idx_images_location ON images(location_id)`,
	"idx_videos_location":    `CREATE INDEX IF NOT EXISTS idx_videos_location ON videos(location_id)`,
	"idx_documents_location": `CREATE INDEX IF NOT EXISTS idx_documents_location ON documents(location_id)`,
	"idx_maps_location":      `CREATE INDEX IF NOT EXISTS idx_maps_location ON maps(location_id)`,
	"idx_imports_location":   `CREATE INDEX IF NOT EXISTS idx_imports_location ON imports(location_id)`,
	"idx_sessions_resumable": `CREATE INDEX IF NOT EXISTS idx_sessions_resumable ON import_sessions(resumable, status)`,
	"idx_jobs_claim":         `CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(queue, status, priority DESC, created_at ASC)`,
	"idx_jobs_depends":       `CREATE INDEX IF NOT EXISTS idx_jobs_depends ON jobs(depends_on)`,
	"idx_jobs_locked_at":     `CREATE INDEX IF NOT EXISTS idx_jobs_locked_at ON jobs(status, locked_at)`,
	"idx_dlq_job":            `CREATE INDEX IF NOT EXISTS idx_dlq_job ON job_dead_letter(job_id)`,
	"idx_refpoints_map":      `CREATE INDEX IF NOT EXISTS idx_refpoints_map ON reference_points(map_id)`,
	"idx_refpoints_linked":   `CREATE INDEX IF NOT EXISTS idx_refpoints_linked ON reference_points(linked_location_id)`,
}

func migrate(db *sql.DB) error {
	var currentVersion int
	if err := db.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	if currentVersion < schemaVersion {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("store: begin migration: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.Exec(schemaDDL); err != nil {
			return fmt.Errorf("store: apply schema: %w", err)
		}
		if currentVersion < 2 {
			if err := addLocationStatsColumns(tx); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("store: set schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: commit migration: %w", err)
		}
	}

	return reconcileIndices(db)
}

// addLocationStatsColumns upgrades a version-1 database to version 2
// by adding the location-stats job's counter columns. schemaDDL's
// CREATE TABLE IF NOT EXISTS only shapes brand-new tables, so an
// already-existing locations table needs these added explicitly;
// ALTER TABLE ADD COLUMN errors on a column that already exists, which
// addColumnIfMissing tolerates to keep this idempotent across retries.
func addLocationStatsColumns(tx *sql.Tx) error {
	columns := map[string]string{
		"stats_image_count":    "INTEGER NOT NULL DEFAULT 0",
		"stats_video_count":    "INTEGER NOT NULL DEFAULT 0",
		"stats_document_count": "INTEGER NOT NULL DEFAULT 0",
		"stats_map_count":      "INTEGER NOT NULL DEFAULT 0",
		"stats_total_bytes":    "INTEGER NOT NULL DEFAULT 0",
		"stats_refreshed_at":   "TEXT",
	}
	for name, ddlType := range columns {
		if err := addColumnIfMissing(tx, "locations", name, ddlType); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(tx *sql.Tx, table, column, ddlType string) error {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("store: inspect %s columns: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("store: scan %s column info: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddlType)); err != nil {
		return fmt.Errorf("store: add column %s.%s: %w", table, column, err)
	}
	return nil
}

// reconcileIndices re-creates any required index missing from
// sqlite_master, idempotently, independent of schema version — this
// runs on every startup so a hand-pruned or partially restored
// database self-heals its critical indices.
func reconcileIndices(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'index'`)
	if err != nil {
		return fmt.Errorf("store: list indices: %w", err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("store: scan index name: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for name, ddl := range requiredIndices {
		if existing[name] {
			continue
		}
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("store: recreate missing index %s: %w", name, err)
		}
	}
	return nil
}
