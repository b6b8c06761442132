package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO needed).

	"github.com/cemaco/titlegen/internal/logging"
)

// ErrNotFound is returned when no job or run exists for a key.
var ErrNotFound = errors.New("not found")

// PersistenceError wraps a failed write to the job store. It reaches
// the run's caller instead of being folded into job state, because a
// job whose outcome could not be committed must not be reported as
// resolved.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("job store %s failed for %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store provides durable access to sku_jobs and batch_runs.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists. WAL mode and a busy timeout keep concurrent chunk
// persisters from tripping over each other.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn) // NOTE: driver name is "sqlite", not "sqlite3"
	if err != nil {
		return nil, fmt.Errorf("opening job store: %w", err)
	}

	s := &Store{db: db, logger: logging.ComponentLogger("store")}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating job store: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	q := `
	CREATE TABLE IF NOT EXISTS sku_jobs (
		sku TEXT PRIMARY KEY,
		hash_input TEXT NOT NULL,
		status TEXT NOT NULL,
		optimized_title TEXT NOT NULL DEFAULT '',
		label_title TEXT NOT NULL DEFAULT '',
		warnings TEXT NOT NULL DEFAULT '[]',
		error_message TEXT NOT NULL DEFAULT '',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_run_at DATETIME NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sku_jobs_status ON sku_jobs(status);

	CREATE TABLE IF NOT EXISTS batch_runs (
		batch_id TEXT PRIMARY KEY,
		requested_skus TEXT NOT NULL,
		options TEXT NOT NULL,
		outcome TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME NULL
	);
	`
	_, err := s.db.Exec(q)
	return err
}

// GetJob retrieves the job row for a SKU, or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, sku string) (*SkuJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT sku, hash_input, status, optimized_title, label_title, warnings, error_message, attempt_count, last_run_at
		 FROM sku_jobs WHERE sku = ?`, sku)
	return scanJob(row)
}

// UpsertPending admits a SKU: it creates the row on first sight or
// rewrites hash_input and resets status to pending on re-admission.
// The attempt counter tracks calls for the current hash_input, so it
// restarts when the fingerprint changes. Output fields are
// deliberately left untouched; they are overwritten only when a new
// result lands.
func (s *Store) UpsertPending(ctx context.Context, sku, hashInput string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sku_jobs (sku, hash_input, status) VALUES (?, ?, ?)
		 ON CONFLICT(sku) DO UPDATE SET
			attempt_count = CASE WHEN sku_jobs.hash_input = excluded.hash_input THEN sku_jobs.attempt_count ELSE 0 END,
			hash_input = excluded.hash_input,
			status = excluded.status`,
		sku, hashInput, string(StatusPending))
	if err != nil {
		return &PersistenceError{Op: "admit", Key: sku, Err: err}
	}
	return nil
}

// MarkProcessing transitions every given SKU to processing, stamping
// last_run_at so stale in-flight rows can be reclaimed later.
func (s *Store) MarkProcessing(ctx context.Context, skus []string) error {
	if len(skus) == 0 {
		return nil
	}
	q := fmt.Sprintf(`UPDATE sku_jobs SET status = ?, last_run_at = ? WHERE sku IN (%s)`,
		placeholders(len(skus)))
	args := make([]any, 0, len(skus)+2)
	args = append(args, string(StatusProcessing), time.Now().UTC())
	for _, sku := range skus {
		args = append(args, sku)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return &PersistenceError{Op: "mark processing", Key: skus[0], Err: err}
	}
	return nil
}

// MarkDone commits a successful result: status, both titles, warnings
// and the attempt counter change together in one statement so a
// concurrent reader never sees a half-updated row.
func (s *Store) MarkDone(ctx context.Context, sku, optimizedTitle, labelTitle string, warnings []string) error {
	wj, err := json.Marshal(emptyIfNil(warnings))
	if err != nil {
		return &PersistenceError{Op: "mark done", Key: sku, Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE sku_jobs
		 SET status = ?, optimized_title = ?, label_title = ?, warnings = ?, error_message = '', attempt_count = 0, last_run_at = ?
		 WHERE sku = ?`,
		string(StatusDone), optimizedTitle, labelTitle, string(wj), time.Now().UTC(), sku)
	if err != nil {
		return &PersistenceError{Op: "mark done", Key: sku, Err: err}
	}
	return nil
}

// MarkItemError records a failed resolution. attempts is the number of
// engine calls the resolution consumed, added to the SKU's counter.
// Previous outputs are kept: they are still the last good result for
// an earlier input.
func (s *Store) MarkItemError(ctx context.Context, sku, message string, attempts int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sku_jobs
		 SET status = ?, error_message = ?, attempt_count = attempt_count + ?, last_run_at = ?
		 WHERE sku = ?`,
		string(StatusError), message, attempts, time.Now().UTC(), sku)
	if err != nil {
		return &PersistenceError{Op: "mark error", Key: sku, Err: err}
	}
	return nil
}

// ResetStatus forces every job currently in `from` back to pending so
// the next run re-admits it. Returns the number of affected rows.
func (s *Store) ResetStatus(ctx context.Context, from Status) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sku_jobs SET status = ? WHERE status = ?`,
		string(StatusPending), string(from))
	if err != nil {
		return 0, &PersistenceError{Op: "reset status", Key: string(from), Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ReclaimStale re-admits jobs abandoned in processing, i.e. rows whose
// last_run_at is older than the cutoff. This is the recovery path for
// persistence failures and crashed controller instances.
func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`UPDATE sku_jobs SET status = ? WHERE status = ? AND (last_run_at IS NULL OR last_run_at < ?)`,
		string(StatusPending), string(StatusProcessing), cutoff)
	if err != nil {
		return 0, &PersistenceError{Op: "reclaim stale", Key: string(StatusProcessing), Err: err}
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Warn().Int64("jobs", n).Msg("reclaimed stale processing jobs")
	}
	return n, nil
}

// ListJobs returns jobs filtered by status (empty status means all),
// ordered by SKU. limit <= 0 means no limit.
func (s *Store) ListJobs(ctx context.Context, status Status, limit int) ([]*SkuJob, error) {
	q := `SELECT sku, hash_input, status, optimized_title, label_title, warnings, error_message, attempt_count, last_run_at
	      FROM sku_jobs`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY sku`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*SkuJob
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CountByStatus returns job counts grouped by status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sku_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var st string
		var n int
		if scanErr := rows.Scan(&st, &n); scanErr != nil {
			return nil, scanErr
		}
		counts[Status(st)] = n
	}
	return counts, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*SkuJob, error) {
	var j SkuJob
	var warnings string
	var lastRun sql.NullTime

	err := row.Scan(&j.SKU, &j.HashInput, &j.Status, &j.OptimizedTitle, &j.LabelTitle,
		&warnings, &j.ErrorMessage, &j.AttemptCount, &lastRun)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	if warnings != "" {
		if unmarshalErr := json.Unmarshal([]byte(warnings), &j.Warnings); unmarshalErr != nil {
			return nil, fmt.Errorf("decoding warnings for %s: %w", j.SKU, unmarshalErr)
		}
	}
	if lastRun.Valid {
		j.LastRunAt = lastRun.Time
	}
	return &j, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
