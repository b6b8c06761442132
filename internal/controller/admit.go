// Package controller is the batch orchestration core: it decides which
// SKUs need processing, chunks them, dispatches chunks to the engine
// under concurrency and retry limits, and commits outcomes to the job
// store so no record is lost, duplicated, or reprocessed needlessly.
package controller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cemaco/titlegen/internal/engine"
	"github.com/cemaco/titlegen/internal/logging"
	"github.com/cemaco/titlegen/internal/store"
)

// Decision is the change detector's verdict for one record.
type Decision string

// Admit decisions.
const (
	// DecisionProcess admits the record for dispatch.
	DecisionProcess Decision = "process"

	// DecisionSkip leaves the record alone: its current input already
	// produced a committed result.
	DecisionSkip Decision = "skip"
)

// Fingerprint returns a stable digest of an item's content fields. The
// SKU itself is excluded: identity never changes, content does. Fields
// are trimmed and inner whitespace collapsed before hashing so
// formatting churn in the source export does not force reprocessing;
// case is preserved because a case change in a title is a real change.
func Fingerprint(item engine.Item) string {
	h := sha256.New()
	for _, field := range []string{item.TituloOrigen, item.Marca, item.Categoria} {
		h.Write([]byte(normalizeField(field)))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeField(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Detector decides whether a record needs (re)processing by comparing
// its fingerprint against the job store.
type Detector struct {
	store      *store.Store
	staleAfter time.Duration
	logger     zerolog.Logger
}

// NewDetector builds a change detector. staleAfter is the age at which
// a job stuck in processing is treated as abandoned and re-admitted.
func NewDetector(st *store.Store, staleAfter time.Duration) *Detector {
	return &Detector{
		store:      st,
		staleAfter: staleAfter,
		logger:     logging.ComponentLogger("detector"),
	}
}

// Admit applies the admission rules for one record:
//
//   - unknown SKU, changed fingerprint, or a previous attempt that
//     ended pending/error → process (job upserted to pending with the
//     current fingerprint, outputs untouched)
//   - fingerprint unchanged and status done → skip
//   - status processing → skip while fresh, process once stale
//
// Admit is deterministic given the store's content; its only side
// effect is the pending upsert on admission.
func (d *Detector) Admit(ctx context.Context, item engine.Item) (Decision, error) {
	fp := Fingerprint(item)

	job, err := d.store.GetJob(ctx, item.SKU)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("looking up job %s: %w", item.SKU, err)
	}

	if job != nil && job.HashInput == fp {
		switch job.Status {
		case store.StatusDone:
			return DecisionSkip, nil
		case store.StatusProcessing:
			if d.staleAfter > 0 && time.Since(job.LastRunAt) < d.staleAfter {
				d.logger.Debug().Str("sku", item.SKU).Msg("skipping in-flight job")
				return DecisionSkip, nil
			}
			d.logger.Warn().Str("sku", item.SKU).Msg("re-admitting stale processing job")
		case store.StatusPending, store.StatusError:
			// Unfinished business for the same input: admit again.
		}
	}

	if err := d.store.UpsertPending(ctx, item.SKU, fp); err != nil {
		return "", err
	}
	return DecisionProcess, nil
}
