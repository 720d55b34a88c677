package elevation

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/signalsfoundry/coverage-engine/model"
)

// pointKey is a coordinate rounded to 4 decimal places (~11 m), the
// cache's spatial granularity. Two lookups within the same ~11 m cell
// share one cache entry.
type pointKey struct {
	latE4 int32
	lonE4 int32
}

func keyForPoint(p model.Point) pointKey {
	return pointKey{
		latE4: int32(math.Round(p.LatDeg * 1e4)),
		lonE4: int32(math.Round(p.LonDeg * 1e4)),
	}
}

func (k pointKey) point() model.Point {
	return model.Point{
		LatDeg: float64(k.latE4) / 1e4,
		LonDeg: float64(k.lonE4) / 1e4,
	}
}

// String renders the key in the portable "lat,lon" export format.
func (k pointKey) String() string {
	return fmt.Sprintf("%.4f,%.4f", float64(k.latE4)/1e4, float64(k.lonE4)/1e4)
}

func parsePointKey(s string) (pointKey, error) {
	lat, lon, found := strings.Cut(s, ",")
	if !found {
		return pointKey{}, fmt.Errorf("cache key %q: missing comma", s)
	}
	latV, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return pointKey{}, fmt.Errorf("cache key %q: %w", s, err)
	}
	lonV, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return pointKey{}, fmt.Errorf("cache key %q: %w", s, err)
	}
	return keyForPoint(model.Point{LatDeg: latV, LonDeg: lonV}), nil
}

// PointCache is the first elevation source tried: resolved elevations
// keyed by rounded coordinate, held in memory and optionally persisted to
// a sqlite database so restarts keep the warm set.
type PointCache struct {
	mu      sync.RWMutex
	entries map[pointKey]float64
	db      *sql.DB
}

// OpenPointCache opens (or creates) the cache. An empty path gives a
// memory-only cache. Persisted entries are loaded eagerly so Get never
// touches the database.
func OpenPointCache(path string) (*PointCache, error) {
	c := &PointCache{entries: make(map[pointKey]float64)}
	if path == "" {
		return c, nil
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("point cache: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS elevations (
		lat_e4 INTEGER NOT NULL,
		lon_e4 INTEGER NOT NULL,
		elevation REAL NOT NULL,
		PRIMARY KEY (lat_e4, lon_e4)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("point cache schema: %w", err)
	}

	rows, err := db.Query(`SELECT lat_e4, lon_e4, elevation FROM elevations`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("point cache load: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k pointKey
		var elev float64
		if err := rows.Scan(&k.latE4, &k.lonE4, &elev); err != nil {
			db.Close()
			return nil, fmt.Errorf("point cache load: %w", err)
		}
		c.entries[k] = elev
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("point cache load: %w", err)
	}

	c.db = db
	return c, nil
}

// Get returns the cached elevation for the point's ~11 m cell.
func (c *PointCache) Get(p model.Point) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[keyForPoint(p)]
	return v, ok
}

// Put stores an elevation for the point's cell, persisting it when the
// cache is disk-backed.
func (c *PointCache) Put(p model.Point, elevation float64) error {
	k := keyForPoint(p)

	c.mu.Lock()
	c.entries[k] = elevation
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO elevations (lat_e4, lon_e4, elevation) VALUES (?, ?, ?)`,
		k.latE4, k.lonE4, elevation)
	if err != nil {
		return fmt.Errorf("point cache put: %w", err)
	}
	return nil
}

// Len reports the number of cached cells.
func (c *PointCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ExportCircle returns every cached entry within radiusKm of center as a
// portable "lat,lon" keyed map, suitable for shipping a warm cache to
// another instance.
func (c *PointCache) ExportCircle(center model.Point, radiusKm float64) map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]float64)
	for k, v := range c.entries {
		if pointDistanceKm(center, k.point()) <= radiusKm {
			out[k.String()] = v
		}
	}
	return out
}

// Import restores exported entries into the cache. Entries are written
// through to the persistent store; a malformed key aborts the import.
func (c *PointCache) Import(entries map[string]float64) error {
	for s, v := range entries {
		k, err := parsePointKey(s)
		if err != nil {
			return err
		}
		if err := c.Put(k.point(), v); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the persistent store, if any.
func (c *PointCache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// pointDistanceKm is the equirectangular approximation, plenty for
// cache-export radii.
func pointDistanceKm(a, b model.Point) float64 {
	latRad := (a.LatDeg + b.LatDeg) / 2 * math.Pi / 180
	dLat := (b.LatDeg - a.LatDeg) * 111.0
	dLon := (b.LonDeg - a.LonDeg) * 111.0 * math.Cos(latRad)
	return math.Hypot(dLat, dLon)
}
