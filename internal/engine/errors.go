package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransientError marks a failure worth retrying with the same chunk:
// timeouts, connection failures, and 5xx responses. Everything else is
// permanent for the chunk.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient engine failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RequestError is a non-transient rejection of the whole batch, e.g. a
// malformed request or a validation failure at the chunk level.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("engine rejected request: status %d: %s", e.StatusCode, e.Body)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
