// Package store is the durable source of truth for per-SKU processing
// state and per-chunk audit records, backed by SQLite. Every component
// in the controller reads from it; only the change detector and the
// result persister write to it.
package store

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a SkuJob.
type Status string

// SkuJob lifecycle states.
const (
	// StatusPending means the SKU is admitted and waiting for dispatch.
	StatusPending Status = "pending"

	// StatusProcessing means the SKU is part of an in-flight chunk.
	StatusProcessing Status = "processing"

	// StatusDone means the last attempt for the current hash_input
	// succeeded and the outputs are current.
	StatusDone Status = "done"

	// StatusError means the last attempt failed; outputs, if any,
	// belong to an earlier input.
	StatusError Status = "error"
)

// SkuJob is one row of the job table, keyed by SKU.
type SkuJob struct {
	SKU            string    `json:"sku"`
	HashInput      string    `json:"hash_input"`
	Status         Status    `json:"status"`
	OptimizedTitle string    `json:"optimized_title,omitempty"`
	LabelTitle     string    `json:"label_title,omitempty"`
	Warnings       []string  `json:"warnings,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	AttemptCount   int       `json:"attempt_count"`
	LastRunAt      time.Time `json:"last_run_at,omitzero"`
}

// RunOutcome is the final disposition of one dispatched chunk.
type RunOutcome string

// Chunk outcomes.
const (
	// OutcomeCompleted means every item in the chunk succeeded.
	OutcomeCompleted RunOutcome = "completed"

	// OutcomePartial means the chunk resolved with a mix of item-level
	// successes and failures.
	OutcomePartial RunOutcome = "partial"

	// OutcomeFailed means no item in the chunk succeeded.
	OutcomeFailed RunOutcome = "failed"
)

// BatchRun is the audit record of one chunk dispatch. One row exists
// for every chunk that was ever handed to the dispatcher, whatever the
// outcome.
type BatchRun struct {
	BatchID       string          `json:"batch_id"`
	RequestedSKUs []string        `json:"requested_skus"`
	Options       json.RawMessage `json:"options"`
	Outcome       RunOutcome      `json:"outcome,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at,omitzero"`
}
