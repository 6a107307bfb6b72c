package polymarket

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the client.
var (
	// ErrNotFound is returned when the upstream has no matching record.
	ErrNotFound = errors.New("market not found")

	// ErrMissingPriceData is returned when a market carries no usable
	// outcome price data.
	ErrMissingPriceData = errors.New("missing price data")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	// It wraps the last observed retryable error.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during
	// a retry backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// TransportError is a network-level failure (connect, timeout, broken
// body read). Always retryable.
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx upstream response. 429 and 5xx are retryable,
// other 4xx are not.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

// Retryable reports whether the status warrants another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ParseError is a malformed upstream body or a violated data invariant.
// Never retryable: the same bytes would fail again.
type ParseError struct {
	Msg string
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("parse error: %s", e.Msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsRetryable classifies an error for the retry executor.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	return false
}

// errorClass labels an error for metrics, mirroring the retryability split.
func errorClass(err error) string {
	var statusErr *StatusError
	switch {
	case errors.As(err, new(*TransportError)):
		return "network"
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == 429 {
			return "rate_limit"
		}
		if statusErr.StatusCode >= 500 {
			return "server"
		}
		return "client"
	case errors.As(err, new(*ParseError)):
		return "parse"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}
