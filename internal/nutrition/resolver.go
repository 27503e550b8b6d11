// Package nutrition resolves food labels to nutrient records across an
// ordered pair of data sources.
package nutrition

import (
	"context"
	"log/slog"

	"github.com/amishk599/nutrilens/internal/model"
)

// Ensure Resolver implements model.NutritionResolver.
var _ model.NutritionResolver = (*Resolver)(nil)

// Resolver queries the primary source and falls back to the secondary one
// only when the primary has nothing usable. Results are never merged.
type Resolver struct {
	primary   model.NutritionSource
	secondary model.NutritionSource
	cache     model.NutritionCache
	logger    *slog.Logger
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(primary, secondary model.NutritionSource, cache model.NutritionCache, logger *slog.Logger) *Resolver {
	return &Resolver{
		primary:   primary,
		secondary: secondary,
		cache:     cache,
		logger:    logger,
	}
}

// Resolve returns the nutrient record for label. It never fails: when no
// source has data every field is unknown.
func (r *Resolver) Resolve(ctx context.Context, label string) model.NutrientRecord {
	if rec := r.fromCache(label); rec != nil {
		return *rec
	}

	for _, src := range []model.NutritionSource{r.primary, r.secondary} {
		if src == nil {
			continue
		}
		rec, err := src.Lookup(ctx, label)
		if err != nil {
			r.logger.Warn("nutrition lookup failed", "source", src.Name(), "label", label, "error", err)
			continue
		}
		if rec == nil {
			r.logger.Debug("no nutrition data", "source", src.Name(), "label", label)
			continue
		}
		r.logger.Debug("nutrition resolved", "source", src.Name(), "label", label)
		r.toCache(label, *rec)
		return *rec
	}

	r.logger.Info("no source had nutrition data", "label", label)
	return model.UnknownRecord()
}

func (r *Resolver) fromCache(label string) *model.NutrientRecord {
	if r.cache == nil {
		return nil
	}
	rec, err := r.cache.Get(label)
	if err != nil {
		r.logger.Warn("nutrition cache read failed", "label", label, "error", err)
		return nil
	}
	return rec
}

// toCache stores rec unless it carries no data, so a later lookup can still
// succeed once a source recovers.
func (r *Resolver) toCache(label string, rec model.NutrientRecord) {
	if r.cache == nil || rec.AllUnknown() {
		return
	}
	if err := r.cache.Put(label, rec); err != nil {
		r.logger.Warn("nutrition cache write failed", "label", label, "error", err)
	}
}
