package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cemaco/titlegen/internal/logging"
)

// generatePath is the engine's batch endpoint.
const generatePath = "/generate-titles"

// maxErrorBodyBytes bounds how much of an error response is kept for
// the error message.
const maxErrorBodyBytes = 2048

// Client is the capability interface for the title-generation engine.
// The controller never reaches the engine except through this contract.
type Client interface {
	// GenerateTitles submits one chunk and returns one result per item.
	// Failures are classified: *TransientError is retryable with the
	// same chunk, anything else fails the chunk immediately.
	GenerateTitles(ctx context.Context, req Request) ([]Result, error)
}

// HTTPClient talks to the engine over HTTP/JSON.
type HTTPClient struct {
	baseURL string
	httpc   *http.Client
	logger  zerolog.Logger
}

// NewHTTPClient builds a client for the engine at baseURL with the
// given per-call timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		logger:  logging.ComponentLogger("engine"),
	}
}

// GenerateTitles implements Client.
func (c *HTTPClient) GenerateTitles(ctx context.Context, req Request) ([]Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding engine request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building engine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug().
		Str("batch_id", req.BatchID).
		Int("items", len(req.Items)).
		Msg("calling engine")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		// Timeouts and connection failures are retryable; a cancelled
		// context is the caller's decision, not an engine fault.
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &TransientError{Op: "call", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		drained, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &TransientError{
			Op:  "call",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(drained))),
		}
	}

	if resp.StatusCode != http.StatusOK {
		drained, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(drained)),
		}
	}

	var results []Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		// A garbled body usually means a proxy or partial response;
		// retrying the same chunk is safe because the engine is
		// idempotent per its contract.
		return nil, &TransientError{Op: "decode", Err: err}
	}

	c.logger.Debug().
		Str("batch_id", req.BatchID).
		Int("results", len(results)).
		Msg("engine responded")

	return results, nil
}
