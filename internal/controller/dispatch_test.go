package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cemaco/titlegen/internal/engine"
)

// clientFunc adapts a function to the engine.Client interface.
type clientFunc func(ctx context.Context, req engine.Request) ([]engine.Result, error)

func (f clientFunc) GenerateTitles(ctx context.Context, req engine.Request) ([]engine.Result, error) {
	return f(ctx, req)
}

func fastDispatcher(client engine.Client, concurrency, retries int, sleepBetween time.Duration) *Dispatcher {
	d := NewDispatcher(client, concurrency, retries, sleepBetween)
	d.initialBackoff = time.Millisecond
	d.maxBackoff = 2 * time.Millisecond
	return d
}

func TestDispatch_Success(t *testing.T) {
	want := []engine.Result{{SKU: "a", Status: engine.StatusOK}}
	d := fastDispatcher(clientFunc(func(_ context.Context, _ engine.Request) ([]engine.Result, error) {
		return want, nil
	}), 1, 3, 0)

	got, err := d.Dispatch(context.Background(), engine.Request{BatchID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDispatch_RetryBound(t *testing.T) {
	const retries = 3
	var calls atomic.Int32

	d := fastDispatcher(clientFunc(func(_ context.Context, _ engine.Request) ([]engine.Result, error) {
		calls.Add(1)
		return nil, &engine.TransientError{Op: "call", Err: errors.New("connection refused")}
	}), 1, retries, 0)

	_, err := d.Dispatch(context.Background(), engine.Request{BatchID: "b1"})
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, retries+1, exhausted.Attempts, "one initial attempt plus the configured retries")
	assert.Equal(t, int32(retries+1), calls.Load())
}

func TestDispatch_TransientThenSuccess(t *testing.T) {
	var calls atomic.Int32

	d := fastDispatcher(clientFunc(func(_ context.Context, req engine.Request) ([]engine.Result, error) {
		if calls.Add(1) < 3 {
			return nil, &engine.TransientError{Op: "call", Err: errors.New("status 503")}
		}
		return []engine.Result{{SKU: "a", Status: engine.StatusOK}}, nil
	}), 1, 3, 0)

	results, err := d.Dispatch(context.Background(), engine.Request{BatchID: "b1"})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDispatch_NonTransientNotRetried(t *testing.T) {
	var calls atomic.Int32

	d := fastDispatcher(clientFunc(func(_ context.Context, _ engine.Request) ([]engine.Result, error) {
		calls.Add(1)
		return nil, &engine.RequestError{StatusCode: 400, Body: "malformed batch"}
	}), 1, 3, 0)

	_, err := d.Dispatch(context.Background(), engine.Request{BatchID: "b1"})
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, int32(1), calls.Load(), "validation rejections are surfaced immediately")

	var reqErr *engine.RequestError
	assert.True(t, errors.As(err, &reqErr))
}

func TestDispatch_ConcurrencyBound(t *testing.T) {
	const (
		concurrency = 2
		chunks      = 8
	)

	var inFlight, highWater atomic.Int32

	d := fastDispatcher(clientFunc(func(_ context.Context, _ engine.Request) ([]engine.Result, error) {
		cur := inFlight.Add(1)
		for {
			peak := highWater.Load()
			if cur <= peak || highWater.CompareAndSwap(peak, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}), concurrency, 0, 5*time.Millisecond)

	ctx := context.Background()
	var wg sync.WaitGroup

	// Mirror the runner loop: acquire in order, resolve concurrently.
	for i := 0; i < chunks; i++ {
		require.NoError(t, d.Acquire(ctx))
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer d.Release(ctx)
			_, _ = d.Dispatch(ctx, engine.Request{BatchID: "b"})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, highWater.Load(), int32(concurrency),
		"no more than %d calls in flight at once", concurrency)
}

func TestRelease_SleepCutShortOnCancel(t *testing.T) {
	d := NewDispatcher(clientFunc(func(_ context.Context, _ engine.Request) ([]engine.Result, error) {
		return nil, nil
	}), 1, 0, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, d.Acquire(context.Background()))
	done := make(chan struct{})
	go func() {
		d.Release(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Release did not return promptly on cancelled context")
	}
}
