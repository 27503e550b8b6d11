package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/nutrilens/internal/model"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultTimeout     = 10 * time.Second
)

// Ensure RetrySource implements model.NutritionSource.
var _ model.NutritionSource = (*RetrySource)(nil)

// RetrySource is a decorator that retries transient failures of the wrapped
// NutritionSource with exponential backoff. Once attempts are exhausted it
// reports "no data" instead of an error.
type RetrySource struct {
	inner       model.NutritionSource
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration
	logger      *slog.Logger

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrySource wraps a NutritionSource with retry logic.
// maxAttempts is the total number of calls including the first (default 3).
// baseDelay is the wait after the first failure (default 1s), doubled on each
// subsequent failure. timeout bounds each individual attempt (default 10s).
func NewRetrySource(inner model.NutritionSource, maxAttempts int, baseDelay, timeout time.Duration, logger *slog.Logger) *RetrySource {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RetrySource{
		inner:       inner,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		timeout:     timeout,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Name reports the wrapped source's name.
func (s *RetrySource) Name() string { return s.inner.Name() }

// Lookup calls the wrapped source, retrying transient errors. Exhaustion and
// malformed responses return (nil, nil). Only cancellation of ctx itself is
// returned as an error.
func (s *RetrySource) Lookup(ctx context.Context, label string) (*model.NutrientRecord, error) {
	var prevDelay time.Duration
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		rec, err := s.inner.Lookup(attemptCtx, label)
		cancel()
		if err == nil {
			return rec, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
		}

		if !isRetryable(err) {
			s.logger.Warn("source returned unusable data",
				"source", s.inner.Name(),
				"label", label,
				"error", err,
			)
			return nil, nil
		}

		if attempt >= s.maxAttempts {
			s.logger.Warn("source unavailable, giving up",
				"source", s.inner.Name(),
				"label", label,
				"attempts", attempt,
				"error", err,
			)
			return nil, nil
		}

		delay := s.backoffDelay(attempt, err)
		if delay < prevDelay {
			delay = prevDelay
		}
		prevDelay = delay

		s.logger.Warn("retrying after transient error",
			"source", s.inner.Name(),
			"label", label,
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"delay", delay,
			"error", err,
		)

		if err := s.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// backoffDelay computes baseDelay * 2^(attempt-1). A longer Retry-After from
// the server (HTTP 429/503) takes precedence.
func (s *RetrySource) backoffDelay(attempt int, err error) time.Duration {
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > delay {
		return httpErr.RetryAfter
	}
	return delay
}

// isRetryable returns true if the error represents a transient failure worth retrying.
// Every non-2xx status and every transport error (including an attempt timeout)
// is transient; a body that could not be decoded is not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, model.ErrMalformedResponse) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
