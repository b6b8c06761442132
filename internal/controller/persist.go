package controller

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cemaco/titlegen/internal/engine"
	"github.com/cemaco/titlegen/internal/logging"
	"github.com/cemaco/titlegen/internal/store"
)

// missingResultMessage is synthesized for a dispatched SKU the engine
// response did not cover. A dispatched SKU is never left in processing.
const missingResultMessage = "no response from engine for sku"

// Persister commits engine results to the job store, one atomic write
// per SKU.
type Persister struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewPersister builds a result persister backed by st.
func NewPersister(st *store.Store) *Persister {
	return &Persister{store: st, logger: logging.ComponentLogger("persister")}
}

// Persist commits one chunk's results. Results are indexed by SKU
// because the engine does not guarantee response order. An ok result
// overwrites both titles, the warnings and clears the error state; an
// item-level error keeps previous outputs and increments the attempt
// counter; a requested SKU with no result entry is recorded as an
// error with a synthesized message.
//
// When dryRun is set nothing is written; counts are still computed so
// the run summary and audit record reflect what would have happened.
// A store failure aborts immediately: remaining SKUs stay in
// processing and are reclaimed by the staleness policy on a later run.
func (p *Persister) Persist(ctx context.Context, items []engine.Item, results []engine.Result, dryRun bool) (succeeded, failed int, err error) {
	bySKU := make(map[string]engine.Result, len(results))
	for _, r := range results {
		bySKU[r.SKU] = r
	}

	for _, item := range items {
		r, found := bySKU[item.SKU]
		switch {
		case !found:
			failed++
			if !dryRun {
				if markErr := p.store.MarkItemError(ctx, item.SKU, missingResultMessage, 1); markErr != nil {
					return succeeded, failed, markErr
				}
			}
			p.logger.Warn().Str("sku", item.SKU).Msg("engine response missing sku")

		case r.Status == engine.StatusOK:
			succeeded++
			if !dryRun {
				if markErr := p.store.MarkDone(ctx, item.SKU, r.OptimizedTitle, r.LabelTitle, r.Warnings); markErr != nil {
					return succeeded, failed, markErr
				}
			}

		default:
			failed++
			msg := r.Error
			if msg == "" {
				msg = "engine reported item error"
			}
			if !dryRun {
				if markErr := p.store.MarkItemError(ctx, item.SKU, msg, 1); markErr != nil {
					return succeeded, failed, markErr
				}
			}
			p.logger.Debug().Str("sku", item.SKU).Str("reason", msg).Msg("item rejected by engine")
		}
	}

	if dryRun {
		p.logger.Info().Int("succeeded", succeeded).Int("failed", failed).Msg("dry run, skipping commit")
	}
	return succeeded, failed, nil
}

// FailChunk marks every SKU of an exhausted chunk as errored with the
// last failure's message. attempts is the number of engine calls the
// chunk consumed before giving up.
func (p *Persister) FailChunk(ctx context.Context, items []engine.Item, message string, attempts int, dryRun bool) error {
	if dryRun {
		return nil
	}
	for _, item := range items {
		if err := p.store.MarkItemError(ctx, item.SKU, message, attempts); err != nil {
			return err
		}
	}
	return nil
}
