package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// OpenRun records a chunk dispatch before the engine is called, so the
// audit trail exists even if the dispatcher dies mid-flight.
func (s *Store) OpenRun(ctx context.Context, run *BatchRun) error {
	skus, err := json.Marshal(run.RequestedSKUs)
	if err != nil {
		return &PersistenceError{Op: "open run", Key: run.BatchID, Err: err}
	}
	opts := run.Options
	if len(opts) == 0 {
		opts = json.RawMessage("{}")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batch_runs (batch_id, requested_skus, options, started_at) VALUES (?, ?, ?, ?)`,
		run.BatchID, string(skus), string(opts), run.StartedAt)
	if err != nil {
		return &PersistenceError{Op: "open run", Key: run.BatchID, Err: err}
	}
	return nil
}

// CloseRun stamps the outcome and finish time of a dispatched chunk.
func (s *Store) CloseRun(ctx context.Context, batchID string, outcome RunOutcome) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_runs SET outcome = ?, finished_at = ? WHERE batch_id = ?`,
		string(outcome), time.Now().UTC(), batchID)
	if err != nil {
		return &PersistenceError{Op: "close run", Key: batchID, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &PersistenceError{Op: "close run", Key: batchID, Err: ErrNotFound}
	}
	return nil
}

// GetRun retrieves one batch run by id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, batchID string) (*BatchRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT batch_id, requested_skus, options, outcome, started_at, finished_at
		 FROM batch_runs WHERE batch_id = ?`, batchID)
	return scanRun(row)
}

// ListRuns returns batch runs, most recent first. limit <= 0 means no
// limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*BatchRun, error) {
	q := `SELECT batch_id, requested_skus, options, outcome, started_at, finished_at
	      FROM batch_runs ORDER BY started_at DESC, batch_id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*BatchRun
	for rows.Next() {
		r, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (*BatchRun, error) {
	var r BatchRun
	var skus, opts, outcome string
	var finished sql.NullTime

	err := row.Scan(&r.BatchID, &skus, &opts, &outcome, &r.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	if err := json.Unmarshal([]byte(skus), &r.RequestedSKUs); err != nil {
		return nil, fmt.Errorf("decoding requested skus for %s: %w", r.BatchID, err)
	}
	r.Options = json.RawMessage(opts)
	r.Outcome = RunOutcome(outcome)
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return &r, nil
}
