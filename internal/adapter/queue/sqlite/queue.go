// Package sqlite implements the durable review-job queue on SQLite.
//
// The queue is dedup-keyed FIFO with at-least-once delivery: enqueuing a job
// whose idempotency key already has a pending or leased entry reports a
// duplicate instead of inserting, dequeued jobs are leased for a bounded TTL
// and become eligible again if never acked, and failed jobs are rescheduled
// with exponential backoff until their attempts are exhausted.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/replikanti/flowlint/internal/domain"
)

// Options configures queue behavior.
type Options struct {
	// MaxAttempts is the total number of deliveries before a job is dropped.
	MaxAttempts int

	// InitialBackoff delays the first retry; each further retry doubles it.
	InitialBackoff time.Duration

	// LeaseTTL is how long a dequeued job stays invisible before it is
	// considered abandoned and redelivered.
	LeaseTTL time.Duration
}

// DefaultOptions mirror the configured retry policy for transient failures.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		LeaseTTL:       5 * time.Minute,
	}
}

// Queue is the SQLite-backed job queue.
type Queue struct {
	db   *sql.DB
	opts Options

	// mu serializes dequeue's select-then-lease so two workers in the same
	// process never lease the same row.
	mu sync.Mutex

	// now is injectable for tests.
	now func() time.Time
}

// New opens (or creates) the queue database at the given path.
// Use ":memory:" for tests.
func New(dbPath string, opts Options) (*Queue, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	// The shared in-memory/file handle must not be duplicated: a second
	// connection would not see the serialized lease protocol.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	q := &Queue{db: db, opts: opts, now: time.Now}
	if q.opts.MaxAttempts <= 0 {
		q.opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if q.opts.InitialBackoff <= 0 {
		q.opts.InitialBackoff = DefaultOptions().InitialBackoff
	}
	if q.opts.LeaseTTL <= 0 {
		q.opts.LeaseTTL = DefaultOptions().LeaseTTL
	}

	if err := q.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return q, nil
}

// createSchema creates the jobs table and indexes if they don't exist.
func (q *Queue) createSchema() error {
	schema := `
	-- Pending and leased review jobs. Rows are deleted on ack or drop, so
	-- the unique key constraint is exactly "at most one pending entry per
	-- idempotency key".
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		idempotency_key TEXT NOT NULL UNIQUE,
		payload TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		not_before INTEGER NOT NULL DEFAULT 0,
		lease_expiry INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_eligible ON jobs(lease_expiry, not_before, id);
	`

	_, err := q.db.Exec(schema)
	return err
}

// Enqueue stores a job keyed by its idempotency key. A key that is already
// present reports EnqueueDuplicate with a nil error.
func (q *Queue) Enqueue(ctx context.Context, job domain.ReviewJob) (domain.EnqueueResult, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return 0, fmt.Errorf("marshal job: %w", err)
	}

	query := `
		INSERT INTO jobs (idempotency_key, payload, created_at)
		VALUES (?, ?, ?)
	`
	_, err = q.db.ExecContext(ctx, query, job.IdempotencyKey(), string(payload), q.now().UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.EnqueueDuplicate, nil
		}
		return 0, fmt.Errorf("enqueue job %s: %w", job.IdempotencyKey(), err)
	}
	return domain.EnqueueAccepted, nil
}

// Dequeue leases the oldest eligible job, or returns nil when none is ready.
func (q *Queue) Dequeue(ctx context.Context) (*domain.LeasedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UnixMilli()

	row := q.db.QueryRowContext(ctx, `
		SELECT id, payload, attempts FROM jobs
		WHERE lease_expiry <= ? AND not_before <= ?
		ORDER BY id
		LIMIT 1
	`, now, now)

	var (
		id       int64
		payload  string
		attempts int
	)
	if err := row.Scan(&id, &payload, &attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue scan: %w", err)
	}

	leaseExpiry := q.now().Add(q.opts.LeaseTTL).UnixMilli()
	if _, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET lease_expiry = ?, attempts = attempts + 1 WHERE id = ?
	`, leaseExpiry, id); err != nil {
		return nil, fmt.Errorf("lease job %d: %w", id, err)
	}

	var job domain.ReviewJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// A row that cannot be decoded can never be processed; drop it.
		_, _ = q.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
		return nil, fmt.Errorf("unmarshal job %d: %w", id, err)
	}

	return &domain.LeasedJob{ID: id, Job: job, Attempts: attempts + 1}, nil
}

// Ack removes a successfully processed job.
func (q *Queue) Ack(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ack job %d: %w", id, err)
	}
	return nil
}

// Nack reports a failed delivery. The job is rescheduled with exponential
// backoff while attempts remain, otherwise dropped. Returns true when the
// job will be redelivered.
func (q *Queue) Nack(ctx context.Context, leased *domain.LeasedJob) (bool, error) {
	if leased.Attempts >= q.opts.MaxAttempts {
		if err := q.Ack(ctx, leased.ID); err != nil {
			return false, err
		}
		return false, nil
	}

	backoff := q.opts.InitialBackoff
	for i := 1; i < leased.Attempts; i++ {
		backoff *= 2
	}
	notBefore := q.now().Add(backoff).UnixMilli()

	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET lease_expiry = 0, not_before = ? WHERE id = ?
	`, notBefore, leased.ID)
	if err != nil {
		return false, fmt.Errorf("nack job %d: %w", leased.ID, err)
	}
	return true, nil
}

// Depth returns the number of stored jobs (pending plus leased).
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var depth int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&depth); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

// Ping verifies the database is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// Close releases the database handle.
func (q *Queue) Close() error {
	return q.db.Close()
}

// isUniqueViolation detects the UNIQUE constraint error without binding to
// driver-internal error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
