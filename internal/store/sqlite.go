package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amishk599/nutrilens/internal/model"
)

// Ensure SQLiteCache implements model.NutritionCache.
var _ model.NutritionCache = (*SQLiteCache)(nil)

// SQLiteCache keeps resolved nutrient records in a SQLite database so repeated
// labels skip the external sources. A NULL column is an unknown nutrient.
type SQLiteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteCache opens (or creates) a SQLite database at dbPath and ensures the
// nutrition_cache table exists. Entries older than ttl are treated as misses;
// ttl <= 0 keeps entries forever.
func NewSQLiteCache(dbPath string, ttl time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	// Concurrent workers write through one connection; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	createTable := `CREATE TABLE IF NOT EXISTS nutrition_cache (
		label     TEXT PRIMARY KEY,
		calories  REAL,
		protein   REAL,
		carbs     REAL,
		fat       REAL,
		cached_at DATETIME NOT NULL
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating nutrition_cache table: %w", err)
	}

	return &SQLiteCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns the cached record for label, or nil if absent or expired.
func (c *SQLiteCache) Get(label string) (*model.NutrientRecord, error) {
	var (
		calories, protein, carbs, fat sql.NullFloat64
		cachedAt                      time.Time
	)
	err := c.db.QueryRow(
		"SELECT calories, protein, carbs, fat, cached_at FROM nutrition_cache WHERE label = ?", label,
	).Scan(&calories, &protein, &carbs, &fat, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry for %s: %w", label, err)
	}
	if c.ttl > 0 && c.now().Sub(cachedAt) > c.ttl {
		return nil, nil
	}

	rec := model.NutrientRecord{
		Calories: fromNull(calories),
		Protein:  fromNull(protein),
		Carbs:    fromNull(carbs),
		Fat:      fromNull(fat),
	}
	return &rec, nil
}

// Put stores rec for label, replacing any previous entry.
func (c *SQLiteCache) Put(label string, rec model.NutrientRecord) error {
	_, err := c.db.Exec(
		`INSERT INTO nutrition_cache (label, calories, protein, carbs, fat, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(label) DO UPDATE SET
		   calories = excluded.calories,
		   protein = excluded.protein,
		   carbs = excluded.carbs,
		   fat = excluded.fat,
		   cached_at = excluded.cached_at`,
		label, toNull(rec.Calories), toNull(rec.Protein), toNull(rec.Carbs), toNull(rec.Fat), c.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("caching nutrition for %s: %w", label, err)
	}
	return nil
}

// Cleanup deletes cache entries older than the given duration.
func (c *SQLiteCache) Cleanup(olderThan time.Duration) error {
	cutoff := c.now().UTC().Add(-olderThan)
	_, err := c.db.Exec("DELETE FROM nutrition_cache WHERE cached_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("cleaning up cache entries older than %v: %w", olderThan, err)
	}
	return nil
}

// Len returns the number of cached labels.
func (c *SQLiteCache) Len() (int, error) {
	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM nutrition_cache").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func toNull(n model.Nutrient) sql.NullFloat64 {
	v, ok := n.Value()
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func fromNull(v sql.NullFloat64) model.Nutrient {
	if !v.Valid {
		return model.Unknown()
	}
	return model.Known(v.Float64)
}
