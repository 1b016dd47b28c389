// Package store implements the Index: the transactional relational
// store of locations, media, imports, sessions, jobs, and reference
// maps. The filesystem owns bytes; the Index owns every record
// pointing at them.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bizzlechizzle/au-archive/internal/persistence/sqlite"
)

// Store wraps the Index's SQLite connection pool. It is safe for
// concurrent use; all multi-row invariants are maintained through
// transactions opened per-call.
type Store struct {
	DB *sql.DB
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting mutation
// helpers run unmodified inside the finalizer's single-transaction
// commit or standalone against the pool.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx wraps an in-flight Index transaction so callers that must commit
// several writes atomically (the finalizer's media/import inserts)
// can reuse the same row-mapping helpers as the non-transactional
// Store methods.
type Tx struct {
	tx *sql.Tx
}

// BeginTx opens a new Index transaction.
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the wrapped transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback rolls back the wrapped transaction. Safe to call after a
// successful Commit (returns sql.ErrTxDone, which callers ignore via
// defer).
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// Open opens (creating if absent) the Index database at dbPath and
// runs any pending migrations
func Open(dbPath string) (*Store, error) {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close checkpoints the WAL and releases the underlying connection
// pool, so the .db file on disk is complete without its -wal sibling.
func (s *Store) Close() error {
	if err := sqlite.Checkpoint(s.DB); err != nil {
		_ = s.DB.Close()
		return err
	}
	return s.DB.Close()
}

// IsMigrated reports whether a named external-backend migration module
// (see internal/store.RecordMigration) has already completed.
func (s *Store) IsMigrated(module string) (bool, error) {
	var exists int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM migration_history WHERE module = ?`, module).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// MigrationRecord captures the provenance of a one-time backend
// conversion (e.g. importing a legacy filesystem-only archive).
type MigrationRecord struct {
	Module       string
	SourceType   string
	SourcePath   string
	MigratedAtMs int64
	RecordCount  int
	Checksum     string
}

// RecordMigration upserts a migration_history row.
func (s *Store) RecordMigration(rec MigrationRecord) error {
	_, err := s.DB.Exec(`
		INSERT INTO migration_history (module, source_type, source_path, migrated_at_ms, record_count, checksum)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(module) DO UPDATE SET
			source_type = excluded.source_type,
			source_path = excluded.source_path,
			migrated_at_ms = excluded.migrated_at_ms,
			record_count = excluded.record_count,
			checksum = excluded.checksum
	`, rec.Module, rec.SourceType, rec.SourcePath, rec.MigratedAtMs, rec.RecordCount, rec.Checksum)
	return err
}
