// Package sqlite owns the connection policy for the archive's single
// database file. The Index and the job queue share one WAL-mode pool,
// so the PRAGMAs and pool sizing are decided once, here.
package sqlite

import (
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo
)

// busyTimeout bounds how long a connection waits on the single writer
// before erroring. Five seconds outlasts the finalizer's bulk insert
// for a large ingest, the longest write transaction in the engine.
const busyTimeout = 5 * time.Second

// connPragmas are applied to every connection via the DSN, so they
// survive pool churn rather than applying only to the first
// connection. journal_size_limit keeps a long-running daemon's WAL
// from growing without bound between checkpoints; temp_store keeps
// sort/temp spill off the archive disk.
var connPragmas = []string{
	"journal_mode(WAL)",
	fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()),
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"temp_store(MEMORY)",
	"journal_size_limit(67108864)",
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=" + strings.Join(connPragmas, "&_pragma=")
}

// Open opens the shared pool. Pool size follows the ingest pipeline's
// cpu-1 sizing: the hashing workers are the main source of concurrent
// readers, and SQLite admits only one writer regardless of pool size,
// so a wider pool buys nothing but lock contention.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	conns := runtime.NumCPU() - 1
	if conns < 2 {
		conns = 2
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	return db, nil
}

// Checkpoint folds the WAL back into the main database file and
// truncates it. Run on daemon shutdown so a cold copy of the .db file
// alone, without its -wal sibling, is a complete backup.
func Checkpoint(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("sqlite: wal checkpoint: %w", err)
	}
	return nil
}

// IntegrityMode selects how thorough VerifyIntegrity is.
type IntegrityMode string

const (
	// IntegrityQuick skips index-content verification (PRAGMA
	// quick_check); cheap enough to run on every daemon start.
	IntegrityQuick IntegrityMode = "quick"
	// IntegrityFull verifies every index against its table (PRAGMA
	// integrity_check); minutes on a large archive database.
	IntegrityFull IntegrityMode = "full"
)

// VerifyIntegrity runs SQLite's built-in integrity checker against the
// database read-only and returns the problems it reported, nil when
// the database is sound.
func VerifyIntegrity(path string, mode IntegrityMode) ([]string, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open for verify failed: %w", err)
	}
	defer db.Close()

	pragma := "PRAGMA quick_check;"
	if mode == IntegrityFull {
		pragma = "PRAGMA integrity_check;"
	}

	rows, err := db.Query(pragma)
	if err != nil {
		return nil, fmt.Errorf("sqlite: integrity pragma failed: %w", err)
	}
	defer rows.Close()

	var scanned int
	var problems []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return nil, fmt.Errorf("sqlite: scan integrity result: %w", err)
		}
		scanned++
		if !strings.EqualFold(res, "ok") {
			problems = append(problems, res)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: read integrity results: %w", err)
	}
	if scanned == 0 {
		return []string{"no results returned from integrity check"}, nil
	}
	return problems, nil
}
