package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/cemaco/titlegen/internal/engine"
	"github.com/cemaco/titlegen/internal/logging"
)

// defaultInitialBackoff is the first retry delay; subsequent delays
// grow exponentially up to defaultMaxBackoff.
const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
)

// ExhaustedError reports that a chunk could not be resolved: either
// every retry failed transiently or the engine rejected the batch
// outright.
type ExhaustedError struct {
	BatchID  string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("batch %s exhausted after %d attempt(s): %v", e.BatchID, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Dispatcher sends chunks to the engine under a global admission gate.
// At most `concurrency` chunks are in flight across the whole
// controller; a slot is held from just before the engine call until
// after the inter-batch sleep, so the sleep throttles the engine
// rather than only the local loop.
type Dispatcher struct {
	client         engine.Client
	sem            *semaphore.Weighted
	retries        int
	sleepBetween   time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         zerolog.Logger
}

// NewDispatcher builds a dispatcher. retries is the number of retries
// after the first attempt; sleepBetween is the pause after each chunk
// resolves.
func NewDispatcher(client engine.Client, concurrency, retries int, sleepBetween time.Duration) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		client:         client,
		sem:            semaphore.NewWeighted(int64(concurrency)),
		retries:        retries,
		sleepBetween:   sleepBetween,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		logger:         logging.ComponentLogger("dispatcher"),
	}
}

// Acquire claims a concurrency slot, blocking until one is free or ctx
// is done. The caller decides dispatch order by acquiring slots in
// split order before spawning chunk goroutines.
func (d *Dispatcher) Acquire(ctx context.Context) error {
	return d.sem.Acquire(ctx, 1)
}

// Release sleeps the configured inter-batch pause and then frees the
// slot. ctx cuts the sleep short on cancellation; the slot is released
// either way.
func (d *Dispatcher) Release(ctx context.Context) {
	defer d.sem.Release(1)

	if d.sleepBetween <= 0 {
		return
	}
	t := time.NewTimer(d.sleepBetween)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Dispatch resolves one chunk: it calls the engine, retrying transient
// failures with exponential backoff, re-sending the same chunk
// unchanged each time. Non-transient failures surface immediately.
// The chunk moves through dispatched → retrying(n) → resolved or
// exhausted; exhaustion is reported as *ExhaustedError.
//
// An attempt already on the wire is never killed by cancellation: the
// engine call runs on its own non-cancellable context, bounded only by
// the client's per-call timeout. Cancellation is honored between
// attempts, so ExhaustedError.Attempts always counts calls actually
// made.
func (d *Dispatcher) Dispatch(ctx context.Context, req engine.Request) ([]engine.Result, error) {
	attempts := 0
	callCtx := context.WithoutCancel(ctx)

	operation := func() ([]engine.Result, error) {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		attempts++
		results, err := d.client.GenerateTitles(callCtx, req)
		if err == nil {
			return results, nil
		}

		if engine.IsTransient(err) {
			d.logger.Warn().
				Str("batch_id", req.BatchID).
				Int("attempt", attempts).
				Int("max_attempts", d.retries+1).
				Err(err).
				Msg("transient engine failure, will retry")
			return nil, err
		}

		d.logger.Error().
			Str("batch_id", req.BatchID).
			Int("attempt", attempts).
			Err(err).
			Msg("non-transient engine failure, not retrying")
		return nil, backoff.Permanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = d.initialBackoff
	expo.MaxInterval = d.maxBackoff

	results, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(d.retries+1)),
	)
	if err != nil {
		return nil, &ExhaustedError{BatchID: req.BatchID, Attempts: attempts, Err: err}
	}

	d.logger.Info().
		Str("batch_id", req.BatchID).
		Int("attempt", attempts).
		Int("results", len(results)).
		Msg("chunk resolved")
	return results, nil
}
