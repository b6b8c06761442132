package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cemaco/titlegen/internal/config"
	"github.com/cemaco/titlegen/internal/engine"
	"github.com/cemaco/titlegen/internal/logging"
	"github.com/cemaco/titlegen/internal/store"
)

// Controller wires the change detector, splitter, dispatcher and
// persister into a single run loop over the job store.
type Controller struct {
	cfg        *config.Config
	store      *store.Store
	detector   *Detector
	dispatcher *Dispatcher
	persister  *Persister
	logger     zerolog.Logger
}

// New builds a controller. The configuration is validated here: an
// invalid configuration is fatal and the run never begins.
func New(cfg *config.Config, st *store.Store, client engine.Client) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		cfg:        cfg,
		store:      st,
		detector:   NewDetector(st, cfg.StaleAfter()),
		dispatcher: NewDispatcher(client, cfg.Concurrency, cfg.Retries, cfg.SleepBetweenBatches()),
		persister:  NewPersister(st),
		logger:     logging.ComponentLogger("controller"),
	}, nil
}

// ChunkOutcome summarizes one dispatched chunk.
type ChunkOutcome struct {
	BatchID   string           `json:"batch_id"`
	Outcome   store.RunOutcome `json:"outcome"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}

// Summary is the result of one controller run.
type Summary struct {
	Admitted  int            `json:"admitted"`
	Skipped   int            `json:"skipped"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Chunks    []ChunkOutcome `json:"chunks,omitempty"`
}

// HasFailures reports whether any SKU ended the run in error; callers
// use it to trigger downstream alerting.
func (s *Summary) HasFailures() bool {
	return s.Failed > 0
}

// Run executes one full pass: reclaim stale jobs, admit changed
// records, split them into chunks, dispatch chunks concurrently and
// commit every outcome. Item and chunk failures are contained in job
// and run state; only configuration and persistence errors propagate.
//
// Cancelling ctx aborts the run at the next chunk boundary: further
// chunks are not dispatched, but engine calls already on the wire run
// to completion under their own timeout and have their outcome
// recorded. A run cut short returns ctx's error alongside the summary.
func (c *Controller) Run(ctx context.Context, records []engine.Item, opts engine.Options) (*Summary, error) {
	if _, err := c.store.ReclaimStale(ctx, c.cfg.StaleAfter()); err != nil {
		return nil, err
	}

	summary := &Summary{}
	var admitted []engine.Item
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.SKU]; dup {
			summary.Skipped++
			c.logger.Warn().Str("sku", rec.SKU).Msg("duplicate sku in input, first occurrence wins")
			continue
		}
		seen[rec.SKU] = struct{}{}

		decision, err := c.detector.Admit(ctx, rec)
		if err != nil {
			return nil, err
		}
		if decision == DecisionProcess {
			admitted = append(admitted, rec)
		} else {
			summary.Skipped++
		}
	}
	summary.Admitted = len(admitted)

	chunks, err := Split(admitted, c.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	if opts.Mode == "" {
		opts.Mode = c.cfg.Mode
	}
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encoding options snapshot: %w", err)
	}

	c.logger.Info().
		Int("records", len(records)).
		Int("admitted", summary.Admitted).
		Int("skipped", summary.Skipped).
		Int("chunks", len(chunks)).
		Bool("dry_run", opts.DryRun).
		Msg("run starting")

	var (
		g        errgroup.Group
		mu       sync.Mutex
		outcomes = make([]ChunkOutcome, len(chunks))
		aborted  error
	)

	// Slots are acquired here, in split order, so chunks are dispatched
	// in the order the splitter produced them even though they may
	// complete out of order.
	for i, chunk := range chunks {
		if acquireErr := c.dispatcher.Acquire(ctx); acquireErr != nil {
			aborted = acquireErr
			c.logger.Warn().Err(acquireErr).Int("remaining_chunks", len(chunks)-i).Msg("run aborted between chunks")
			break
		}

		g.Go(func() error {
			defer c.dispatcher.Release(ctx)

			out, chunkErr := c.runChunk(ctx, chunk, opts, optsJSON)
			mu.Lock()
			outcomes[i] = out
			summary.Succeeded += out.Succeeded
			summary.Failed += out.Failed
			mu.Unlock()
			return chunkErr
		})
	}

	waitErr := g.Wait()

	for _, out := range outcomes {
		if out.BatchID != "" {
			summary.Chunks = append(summary.Chunks, out)
		}
	}

	c.logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("chunks", len(summary.Chunks)).
		Msg("run finished")

	if waitErr != nil {
		return summary, waitErr
	}
	if aborted == nil {
		aborted = ctx.Err()
	}
	return summary, aborted
}

// runChunk resolves one chunk end to end: audit open, dispatch with
// retry, persist, audit close. Store writes use a non-cancellable
// context so an abort mid-run still gets every outcome recorded.
func (c *Controller) runChunk(ctx context.Context, chunk []engine.Item, opts engine.Options, optsJSON json.RawMessage) (out ChunkOutcome, err error) {
	batchID := ulid.Make().String()
	out = ChunkOutcome{BatchID: batchID, Outcome: store.OutcomeFailed}

	persistCtx := context.WithoutCancel(ctx)

	skus := make([]string, len(chunk))
	for i, item := range chunk {
		skus[i] = item.SKU
	}

	if openErr := c.store.OpenRun(persistCtx, &store.BatchRun{
		BatchID:       batchID,
		RequestedSKUs: skus,
		Options:       optsJSON,
	}); openErr != nil {
		return out, openErr
	}

	// The audit row is closed no matter how the chunk ends.
	defer func() {
		if closeErr := c.store.CloseRun(persistCtx, batchID, out.Outcome); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if !opts.DryRun {
		if markErr := c.store.MarkProcessing(persistCtx, skus); markErr != nil {
			return out, markErr
		}
	}

	results, dispatchErr := c.dispatcher.Dispatch(ctx, engine.Request{
		BatchID: batchID,
		Items:   chunk,
		Options: opts,
	})
	if dispatchErr != nil {
		out.Failed = len(chunk)
		out.Outcome = store.OutcomeFailed
		attempts := 1
		var exhausted *ExhaustedError
		if errors.As(dispatchErr, &exhausted) {
			attempts = exhausted.Attempts
		}
		if failErr := c.persister.FailChunk(persistCtx, chunk, dispatchErr.Error(), attempts, opts.DryRun); failErr != nil {
			return out, failErr
		}
		// Chunk-level failure is contained in job and run state.
		return out, nil
	}

	succeeded, failed, persistErr := c.persister.Persist(persistCtx, chunk, results, opts.DryRun)
	out.Succeeded, out.Failed = succeeded, failed

	switch {
	case failed == 0:
		out.Outcome = store.OutcomeCompleted
	case succeeded > 0:
		out.Outcome = store.OutcomePartial
	default:
		out.Outcome = store.OutcomeFailed
	}

	if persistErr != nil {
		return out, persistErr
	}
	return out, nil
}
