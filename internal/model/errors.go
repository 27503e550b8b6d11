package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrJobNotFound is returned when polling an id the store does not hold.
	ErrJobNotFound = errors.New("job not found")

	// ErrBusy is returned by Submit when the concurrent job limit is reached.
	ErrBusy = errors.New("too many jobs in flight")

	// ErrMalformedResponse marks an upstream body that could not be decoded.
	// Retrying will not fix it.
	ErrMalformedResponse = errors.New("malformed response")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
