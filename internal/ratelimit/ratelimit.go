package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/amishk599/nutrilens/internal/model"
)

// SourceRateLimiter enforces a minimum delay between requests to the same
// nutrition source. Concurrent job workers share one instance.
type SourceRateLimiter struct {
	limiters map[string]*rate.Limiter // key: source name
}

// NewSourceRateLimiter creates a limiter with per-source minimum delays.
// Sources absent from minDelay, or with a delay <= 0, are not limited.
func NewSourceRateLimiter(minDelay map[string]time.Duration) *SourceRateLimiter {
	limiters := make(map[string]*rate.Limiter, len(minDelay))
	for source, d := range minDelay {
		if d > 0 {
			limiters[source] = rate.NewLimiter(rate.Every(d), 1)
		}
	}
	return &SourceRateLimiter{limiters: limiters}
}

// Wait blocks until the caller holds the next slot for source.
// Returns an error if the context is cancelled while waiting; the slot is
// handed back so callers queued behind it are not delayed.
func (r *SourceRateLimiter) Wait(ctx context.Context, source string) error {
	limiter, ok := r.limiters[source]
	if !ok {
		return nil
	}

	res := limiter.Reserve()
	delay := res.Delay()
	if delay <= 0 {
		return nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		res.Cancel()
		return fmt.Errorf("rate limiter wait for %s: %w", source, ctx.Err())
	case <-t.C:
		return nil
	}
}

// Ensure RateLimitedSource implements model.NutritionSource.
var _ model.NutritionSource = (*RateLimitedSource)(nil)

// RateLimitedSource is a decorator that waits on the shared limiter before
// delegating to the wrapped NutritionSource.
type RateLimitedSource struct {
	inner   model.NutritionSource
	limiter *SourceRateLimiter
}

// NewRateLimitedSource wraps a NutritionSource with source-level pacing.
func NewRateLimitedSource(inner model.NutritionSource, limiter *SourceRateLimiter) *RateLimitedSource {
	return &RateLimitedSource{
		inner:   inner,
		limiter: limiter,
	}
}

// Name reports the wrapped source's name.
func (s *RateLimitedSource) Name() string { return s.inner.Name() }

// Lookup waits for the limiter to allow a request, then delegates.
func (s *RateLimitedSource) Lookup(ctx context.Context, label string) (*model.NutrientRecord, error) {
	if err := s.limiter.Wait(ctx, s.inner.Name()); err != nil {
		return nil, err
	}
	return s.inner.Lookup(ctx, label)
}
