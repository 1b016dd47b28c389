// Package queue implements the durable SQLite-backed priority job
// queue: dependency-gated claiming, exponential
// backoff retry, stale-lease reclamation, and a dead-letter sink.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizzlechizzle/au-archive/internal/log"
)

// Priority constants shared by every handler
const (
	PriorityCritical   = 100
	PriorityHigh       = 50
	PriorityNormal     = 10
	PriorityLow        = 1
	PriorityBackground = 0
)

// Status values a job row can hold.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusDead       = "dead"
)

// DefaultStaleLockTimeout is the age at which a processing job with no
// heartbeat is presumed abandoned and released back to pending
const DefaultStaleLockTimeout = 5 * time.Minute

// ErrNoJob is returned by GetNext when no eligible job exists.
var ErrNoJob = errors.New("queue: no eligible job")

// Job mirrors one row of the jobs table.
type Job struct {
	ID          string
	Queue       string
	Priority    int
	Status      string
	PayloadJSON string
	DependsOn   string
	Attempts    int
	MaxAttempts int
	LastError   string
	Error       string
	ResultJSON  string
	RetryAfter  *time.Time
	LockedBy    string
	LockedAt    *time.Time
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Queue is a handle onto the jobs/job_dead_letter tables.
type Queue struct {
	DB               *sql.DB
	StaleLockTimeout time.Duration
}

// New wraps an already-open, already-migrated database connection. The
// queue shares the Index's schema (see internal/store) rather than
// owning a separate file, so callers pass in store.Store.DB.
func New(db *sql.DB) *Queue {
	return &Queue{DB: db, StaleLockTimeout: DefaultStaleLockTimeout}
}

// EnqueueInput describes one job to create.
type EnqueueInput struct {
	Queue       string
	Priority    int
	Payload     any
	DependsOn   string
	MaxAttempts int
}

// Enqueue bulk-inserts jobs in one transaction, returning their ids in
// input order.
func (q *Queue) Enqueue(ctx context.Context, inputs []EnqueueInput) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	tx, err := q.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: begin enqueue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, 0, len(inputs))
	now := time.Now().UTC()
	for _, in := range inputs {
		payload, err := json.Marshal(in.Payload)
		if err != nil {
			return nil, fmt.Errorf("queue: marshal payload: %w", err)
		}
		maxAttempts := in.MaxAttempts
		if maxAttempts == 0 {
			maxAttempts = 5
		}
		id := uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO jobs (id, queue, priority, status, payload_json, depends_on, attempts, max_attempts, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		`, id, in.Queue, in.Priority, StatusPending, string(payload), nullStr(in.DependsOn), maxAttempts, formatTimeRFC(now))
		if err != nil {
			return nil, fmt.Errorf("queue: insert job: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("queue: commit enqueue: %w", err)
	}
	return ids, nil
}

// GetNext releases stale leases for the named queue, then claims and
// returns the single highest-priority eligible job, or ErrNoJob.
func (q *Queue) GetNext(ctx context.Context, queueName, workerID string) (*Job, error) {
	if err := q.releaseStaleLeases(ctx, queueName); err != nil {
		return nil, err
	}

	for {
		row := q.DB.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE queue = ? AND status = ? AND locked_by IS NULL
				AND (retry_after IS NULL OR retry_after <= ?)
				AND (depends_on IS NULL OR EXISTS (
					SELECT 1 FROM jobs dep WHERE dep.id = jobs.depends_on AND dep.status = ?
				))
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
		`, queueName, StatusPending, formatTimeRFC(time.Now().UTC()), StatusCompleted)

		var candidateID string
		if err := row.Scan(&candidateID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNoJob
			}
			return nil, fmt.Errorf("queue: select candidate: %w", err)
		}

		job, claimed, err := q.claim(ctx, candidateID, workerID)
		if err != nil {
			return nil, err
		}
		if claimed {
			return job, nil
		}
		// Another worker won the race on this row; retry selection.
	}
}

// claim performs the atomic "claim then verify" CAS update: it sets
// processing/lock fields guarded by the same predicate used to select
// the row, and inspects RowsAffected to detect a lost race rather than
// trusting the prior SELECT.
func (q *Queue) claim(ctx context.Context, id, workerID string) (*Job, bool, error) {
	now := time.Now().UTC()
	res, err := q.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, locked_by = ?, locked_at = ?, started_at = ?, attempts = attempts + 1
		WHERE id = ? AND status = ? AND locked_by IS NULL
	`, StatusProcessing, workerID, formatTimeRFC(now), formatTimeRFC(now), id, StatusPending)
	if err != nil {
		return nil, false, fmt.Errorf("queue: claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("queue: claim rows affected: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}

	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// releaseStaleLeases transitions any processing job in queueName whose
// locked_at predates the stale-lock timeout back to pending, clearing
// its lock fields. Runs inline before every claim rather than on a
// periodic sweep.
func (q *Queue) releaseStaleLeases(ctx context.Context, queueName string) error {
	cutoff := time.Now().UTC().Add(-q.effectiveStaleLockTimeout())
	_, err := q.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, locked_by = NULL, locked_at = NULL
		WHERE queue = ? AND status = ? AND locked_at < ?
	`, StatusPending, queueName, StatusProcessing, formatTimeRFC(cutoff))
	if err != nil {
		return fmt.Errorf("queue: release stale leases: %w", err)
	}
	return nil
}

func (q *Queue) effectiveStaleLockTimeout() time.Duration {
	if q.StaleLockTimeout <= 0 {
		return DefaultStaleLockTimeout
	}
	return q.StaleLockTimeout
}

// Complete marks a job completed and clears its lock fields.
func (q *Queue) Complete(ctx context.Context, id string, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("queue: marshal result: %w", err)
	}
	_, err = q.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, result_json = ?, completed_at = ?, locked_by = NULL, locked_at = NULL
		WHERE id = ?
	`, StatusCompleted, string(resultJSON), formatTimeRFC(time.Now().UTC()), id)
	return err
}

// backoffMillis implements the schedule: 1000*2^attempts,
// capped at 60000ms. attempts is the zero-based retry count — the
// job's first failure (Job.Attempts == 1, since claiming already
// incremented it) uses exponent 0.
func backoffMillis(attempts int) int64 {
	const base = int64(1000)
	const ceiling = int64(60000)
	if attempts < 0 {
		attempts = 0
	}
	ms := base
	for i := 0; i < attempts; i++ {
		ms *= 2
		if ms >= ceiling {
			return ceiling
		}
	}
	return ms
}

// Fail records a handler failure. If the job has exhausted its retry
// budget it transitions to dead and writes a DLQ row in the same
// transaction; otherwise it schedules a backoff retry
func (q *Queue) Fail(ctx context.Context, id, errMsg string) error {
	job, err := q.Get(ctx, id)
	if err != nil {
		return err
	}

	tx, err := q.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("queue: begin fail: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if job.Attempts >= job.MaxAttempts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO job_dead_letter (job_id, queue, payload_json, error, attempts, failed_at, acknowledged)
			VALUES (?, ?, ?, ?, ?, ?, 0)
		`, job.ID, job.Queue, job.PayloadJSON, errMsg, job.Attempts, formatTimeRFC(time.Now().UTC())); err != nil {
			return fmt.Errorf("queue: insert dlq row: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, error = ?, locked_by = NULL, locked_at = NULL WHERE id = ?
		`, StatusDead, errMsg, job.ID); err != nil {
			return fmt.Errorf("queue: mark dead: %w", err)
		}
		logger := log.WithComponent("queue")
		logger.Warn().Str("job_id", job.ID).Str("queue", job.Queue).
			Int("attempts", job.Attempts).Msg("job exhausted retries, moved to dead letter")
	} else {
		retryAfter := time.Now().UTC().Add(time.Duration(backoffMillis(job.Attempts-1)) * time.Millisecond)
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = ?, error = NULL, last_error = ?, retry_after = ?, locked_by = NULL, locked_at = NULL
			WHERE id = ?
		`, StatusPending, errMsg, formatTimeRFC(retryAfter), job.ID); err != nil {
			return fmt.Errorf("queue: schedule retry: %w", err)
		}
	}

	return tx.Commit()
}

// Get fetches a job by id.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	row := q.DB.QueryRowContext(ctx, `
		SELECT id, queue, priority, status, payload_json, depends_on, attempts, max_attempts,
			last_error, error, result_json, retry_after, locked_by, locked_at,
			created_at, started_at, completed_at
		FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// AcknowledgeDeadLetter clears the UI backlog indicator on a DLQ row
// without deleting it ("acknowledging ... preserves the row
// for audit").
func (q *Queue) AcknowledgeDeadLetter(ctx context.Context, dlqID int64) error {
	_, err := q.DB.ExecContext(ctx, `UPDATE job_dead_letter SET acknowledged = 1 WHERE id = ?`, dlqID)
	return err
}

// RetryDeadLetter creates a fresh job from a dead-letter row's original
// payload and marks the DLQ entry acknowledged
func (q *Queue) RetryDeadLetter(ctx context.Context, dlqID int64) (string, error) {
	var queueName, payloadJSON string
	err := q.DB.QueryRowContext(ctx, `SELECT queue, payload_json FROM job_dead_letter WHERE id = ?`, dlqID).
		Scan(&queueName, &payloadJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("queue: dlq row %d: %w", dlqID, ErrNoJob)
	}
	if err != nil {
		return "", fmt.Errorf("queue: read dlq row: %w", err)
	}

	var payload any
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return "", fmt.Errorf("queue: unmarshal dlq payload: %w", err)
	}

	ids, err := q.Enqueue(ctx, []EnqueueInput{{Queue: queueName, Priority: PriorityNormal, Payload: payload}})
	if err != nil {
		return "", err
	}

	if _, err := q.DB.ExecContext(ctx, `UPDATE job_dead_letter SET acknowledged = 1 WHERE id = ?`, dlqID); err != nil {
		return "", fmt.Errorf("queue: acknowledge retried dlq row: %w", err)
	}
	return ids[0], nil
}

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var dependsOn, lastError, errField, resultJSON, lockedBy sql.NullString
	var retryAfter, lockedAt, startedAt, completedAt sql.NullString
	var createdAt string

	err := row.Scan(
		&j.ID, &j.Queue, &j.Priority, &j.Status, &j.PayloadJSON, &dependsOn, &j.Attempts, &j.MaxAttempts,
		&lastError, &errField, &resultJSON, &retryAfter, &lockedBy, &lockedAt,
		&createdAt, &startedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("queue: scan job: %w", err)
	}

	j.DependsOn = dependsOn.String
	j.LastError = lastError.String
	j.Error = errField.String
	j.ResultJSON = resultJSON.String
	j.LockedBy = lockedBy.String
	j.RetryAfter = parseNullTimeRFC(retryAfter)
	j.LockedAt = parseNullTimeRFC(lockedAt)
	j.StartedAt = parseNullTimeRFC(startedAt)
	j.CompletedAt = parseNullTimeRFC(completedAt)
	j.CreatedAt = mustParseTimeRFC(createdAt)
	return &j, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTimeRFC(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTimeRFC(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func mustParseTimeRFC(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
