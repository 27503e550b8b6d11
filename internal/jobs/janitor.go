package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/amishk599/nutrilens/internal/model"
)

// Janitor periodically evicts finished jobs past their retention and purges
// expired nutrition cache entries.
type Janitor struct {
	store     *Store
	cache     model.NutritionCache
	retention time.Duration
	cacheTTL  time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewJanitor creates a janitor. retention <= 0 keeps finished jobs forever;
// cacheTTL <= 0 or a nil cache skips cache cleanup.
func NewJanitor(store *Store, cache model.NutritionCache, retention, cacheTTL, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		store:     store,
		cache:     cache,
		retention: retention,
		cacheTTL:  cacheTTL,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps on the configured interval. It returns nil when ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	if j.interval <= 0 || (j.retention <= 0 && (j.cache == nil || j.cacheTTL <= 0)) {
		j.logger.Info("janitor disabled")
		<-ctx.Done()
		return nil
	}

	j.logger.Info("starting janitor",
		"interval", j.interval.String(),
		"retention", j.retention.String(),
		"cache_ttl", j.cacheTTL.String(),
	)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("shutting down janitor")
			return nil
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep runs one eviction pass.
func (j *Janitor) Sweep() {
	if j.retention > 0 {
		if n := j.store.Sweep(j.now().Add(-j.retention)); n > 0 {
			j.logger.Info("evicted finished jobs", "count", n, "remaining", j.store.Len())
		}
	}
	if j.cache != nil && j.cacheTTL > 0 {
		if err := j.cache.Cleanup(j.cacheTTL); err != nil {
			j.logger.Error("nutrition cache cleanup failed", "error", err)
		}
	}
}
