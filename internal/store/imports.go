package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PutImportSession inserts or updates the durable checkpoint row for
// one orchestrator run LastStep and the per-stage result
// JSON columns are what a resumed run reads back to skip completed
// stages.
func (s *Store) PutImportSession(ctx context.Context, sess *ImportSession) error {
	paths, err := json.Marshal(sess.SourcePaths)
	if err != nil {
		return fmt.Errorf("store: marshal source paths: %w", err)
	}
	now := nowUTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO import_sessions (
			session_id, location_id, status, source_paths_json, copy_strategy,
			total_files, total_bytes, last_step, error_message, resumable,
			scan_result_json, hash_result_json, copy_result_json, validate_result_json,
			created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET
			status=excluded.status, copy_strategy=excluded.copy_strategy,
			total_files=excluded.total_files, total_bytes=excluded.total_bytes,
			last_step=excluded.last_step, error_message=excluded.error_message,
			resumable=excluded.resumable,
			scan_result_json=excluded.scan_result_json, hash_result_json=excluded.hash_result_json,
			copy_result_json=excluded.copy_result_json, validate_result_json=excluded.validate_result_json,
			updated_at=excluded.updated_at
	`,
		sess.SessionID, sess.LocationID, string(sess.Status), string(paths), nullStr(sess.CopyStrategy),
		sess.TotalFiles, sess.TotalBytes, sess.LastStep, nullStr(sess.ErrorMessage), sess.Resumable,
		nullStr(sess.ScanResultJSON), nullStr(sess.HashResultJSON), nullStr(sess.CopyResultJSON), nullStr(sess.ValidateResultJSON),
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: put import session: %w", err)
	}
	return nil
}

// GetImportSession fetches one session checkpoint by id.
func (s *Store) GetImportSession(ctx context.Context, sessionID string) (*ImportSession, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT session_id, location_id, status, source_paths_json, copy_strategy,
			total_files, total_bytes, last_step, error_message, resumable,
			scan_result_json, hash_result_json, copy_result_json, validate_result_json,
			created_at, updated_at
		FROM import_sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

// ListResumable returns every session left in a non-terminal status
// with resumable=1: on daemon startup these are the
// sessions whose orchestrator was killed mid-run and that can pick up
// from last_step rather than restart from scan.
func (s *Store) ListResumable(ctx context.Context) ([]*ImportSession, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT session_id, location_id, status, source_paths_json, copy_strategy,
			total_files, total_bytes, last_step, error_message, resumable,
			scan_result_json, hash_result_json, copy_result_json, validate_result_json,
			created_at, updated_at
		FROM import_sessions
		WHERE resumable = 1 AND status NOT IN ('completed', 'cancelled', 'failed')
		ORDER BY updated_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list resumable sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ImportSession
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// MarkSessionTerminal transitions a session to completed/cancelled/
// failed and clears its resumable flag; terminal states are final.
func (s *Store) MarkSessionTerminal(ctx context.Context, sessionID string, status SessionStatus, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE import_sessions SET status = ?, error_message = ?, resumable = 0, updated_at = ?
		WHERE session_id = ?`,
		string(status), nullStr(errMsg), formatTime(nowUTC()), sessionID,
	)
	return err
}

func scanSession(row *sql.Row) (*ImportSession, error) {
	var sess ImportSession
	var copyStrategy, errorMessage, scanJSON, hashJSON, copyJSON, validateJSON sql.NullString
	var pathsJSON, status, createdAt, updatedAt string
	err := row.Scan(
		&sess.SessionID, &sess.LocationID, &status, &pathsJSON, &copyStrategy,
		&sess.TotalFiles, &sess.TotalBytes, &sess.LastStep, &errorMessage, &sess.Resumable,
		&scanJSON, &hashJSON, &copyJSON, &validateJSON,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan import session: %w", err)
	}
	return finishSession(&sess, status, pathsJSON, copyStrategy, errorMessage, scanJSON, hashJSON, copyJSON, validateJSON, createdAt, updatedAt)
}

func scanSessionRows(rows *sql.Rows) (*ImportSession, error) {
	var sess ImportSession
	var copyStrategy, errorMessage, scanJSON, hashJSON, copyJSON, validateJSON sql.NullString
	var pathsJSON, status, createdAt, updatedAt string
	err := rows.Scan(
		&sess.SessionID, &sess.LocationID, &status, &pathsJSON, &copyStrategy,
		&sess.TotalFiles, &sess.TotalBytes, &sess.LastStep, &errorMessage, &sess.Resumable,
		&scanJSON, &hashJSON, &copyJSON, &validateJSON,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: scan import session row: %w", err)
	}
	return finishSession(&sess, status, pathsJSON, copyStrategy, errorMessage, scanJSON, hashJSON, copyJSON, validateJSON, createdAt, updatedAt)
}

func finishSession(sess *ImportSession, status, pathsJSON string, copyStrategy, errorMessage, scanJSON, hashJSON, copyJSON, validateJSON sql.NullString, createdAt, updatedAt string) (*ImportSession, error) {
	sess.Status = SessionStatus(status)
	sess.CopyStrategy = copyStrategy.String
	sess.ErrorMessage = errorMessage.String
	sess.ScanResultJSON = scanJSON.String
	sess.HashResultJSON = hashJSON.String
	sess.CopyResultJSON = copyJSON.String
	sess.ValidateResultJSON = validateJSON.String
	sess.CreatedAt = mustParseTime(createdAt)
	sess.UpdatedAt = mustParseTime(updatedAt)
	if err := json.Unmarshal([]byte(pathsJSON), &sess.SourcePaths); err != nil {
		return nil, fmt.Errorf("store: unmarshal source paths: %w", err)
	}
	return sess, nil
}

// RecentThroughput averages bytes-per-second over the last limit
// completed sessions, the historical rate the scanner uses to smooth
// its ETA estimate. It reports
// ok=false when there is no completed session history yet, so the
// caller can fall back to the scanner's static default.
func (s *Store) RecentThroughput(ctx context.Context, limit int) (bytesPerSecond int64, ok bool, err error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT total_bytes, created_at, updated_at
		FROM import_sessions
		WHERE status = 'completed' AND total_bytes > 0
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return 0, false, fmt.Errorf("store: query recent throughput: %w", err)
	}
	defer rows.Close()

	var totalBytes int64
	var totalSeconds float64
	for rows.Next() {
		var bytes int64
		var createdAt, updatedAt string
		if err := rows.Scan(&bytes, &createdAt, &updatedAt); err != nil {
			return 0, false, fmt.Errorf("store: scan recent throughput row: %w", err)
		}
		elapsed := mustParseTime(updatedAt).Sub(mustParseTime(createdAt)).Seconds()
		if elapsed <= 0 {
			continue
		}
		totalBytes += bytes
		totalSeconds += elapsed
	}
	if err := rows.Err(); err != nil {
		return 0, false, fmt.Errorf("store: iterate recent throughput: %w", err)
	}
	if totalSeconds <= 0 {
		return 0, false, nil
	}
	return int64(float64(totalBytes) / totalSeconds), true, nil
}

// RecordImport writes the summary row for one completed ingest
// step 5 ("insert one imports row summarizing the session").
func (s *Store) RecordImport(ctx context.Context, imp *Import) error {
	return recordImport(ctx, s.DB, imp)
}

// RecordImport writes the summary row within an open transaction, used
// by the finalizer alongside Tx.PutMedia
func (t *Tx) RecordImport(ctx context.Context, imp *Import) error {
	return recordImport(ctx, t.tx, imp)
}

func recordImport(ctx context.Context, db execer, imp *Import) error {
	if imp.CreatedAt.IsZero() {
		imp.CreatedAt = nowUTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO imports (
			id, session_id, location_id, importer, copy_strategy,
			file_count, byte_count, duplicate_count, error_count, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)
	`,
		imp.ID, imp.SessionID, imp.LocationID, imp.Importer, imp.CopyStrategy,
		imp.FileCount, imp.ByteCount, imp.DuplicateCount, imp.ErrorCount, formatTime(imp.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: record import: %w", err)
	}
	return nil
}
