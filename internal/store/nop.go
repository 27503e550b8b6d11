package store

import (
	"time"

	"github.com/amishk599/nutrilens/internal/model"
)

// NopCache is used when caching is disabled. Every lookup misses.
type NopCache struct{}

func NewNopCache() *NopCache { return &NopCache{} }

func (c *NopCache) Get(label string) (*model.NutrientRecord, error)  { return nil, nil }
func (c *NopCache) Put(label string, rec model.NutrientRecord) error { return nil }
func (c *NopCache) Cleanup(olderThan time.Duration) error            { return nil }
