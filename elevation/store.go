package elevation

import (
	"context"
	"math"

	"github.com/signalsfoundry/coverage-engine/internal/logging"
	"github.com/signalsfoundry/coverage-engine/model"
)

// LookupMetrics receives per-source counters from the store. The store
// never blocks on it.
type LookupMetrics interface {
	ObserveElevationLookups(cacheHits, tileHits, remoteHits, unresolved int)
}

// Store is the layered elevation source: point cache first, then local
// HGT tiles, then the remote API. Points nothing resolves report 0 m and
// are deliberately not cached, so a later-arriving tile can still answer
// them.
type Store struct {
	cache   *PointCache
	tiles   *TileStore
	remote  *RemoteClient
	log     logging.Logger
	metrics LookupMetrics
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCache attaches a point cache layer.
func WithCache(c *PointCache) StoreOption {
	return func(s *Store) { s.cache = c }
}

// WithTiles attaches a local tile layer.
func WithTiles(t *TileStore) StoreOption {
	return func(s *Store) { s.tiles = t }
}

// WithRemote attaches a remote API layer.
func WithRemote(r *RemoteClient) StoreOption {
	return func(s *Store) { s.remote = r }
}

// WithStoreLogger sets the structured logger. Defaults to Noop.
func WithStoreLogger(l logging.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLookupMetrics attaches a per-lookup metrics sink.
func WithLookupMetrics(m LookupMetrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// NewStore assembles the fallback chain from whatever layers are given.
// A Store with no layers resolves everything to 0 m; that is a valid
// flat-earth configuration, not an error.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{log: logging.Noop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LookupBatch resolves one elevation per point through the fallback
// chain. It always returns len(points) values; unresolvable points carry
// 0. Only a remote transport failure surfaces as an error, and even then
// the tile- and cache-resolved values are already final, so callers may
// choose to keep them.
func (s *Store) LookupBatch(ctx context.Context, points []model.Point) ([]float64, error) {
	elev := make([]float64, len(points))
	resolved := make([]bool, len(points))

	var cacheHits, tileHits, remoteHits int

	if s.cache != nil {
		for i, p := range points {
			if v, ok := s.cache.Get(p); ok {
				elev[i] = v
				resolved[i] = true
				cacheHits++
			}
		}
	}

	if s.tiles != nil {
		// Group by containing tile so each tile is fetched once per batch.
		groups := make(map[TileKey][]int)
		for i, p := range points {
			if resolved[i] {
				continue
			}
			key := keyFor(p.LatDeg, p.LonDeg)
			groups[key] = append(groups[key], i)
		}
		for key, idx := range groups {
			tile, err := s.tiles.tile(ctx, key)
			if err != nil {
				continue
			}
			for _, i := range idx {
				if v, ok := tile.Elevation(points[i].LatDeg, points[i].LonDeg); ok {
					elev[i] = v
					resolved[i] = true
					tileHits++
					s.writeBack(ctx, points[i], v)
				}
			}
		}
	}

	if s.remote != nil {
		var pending []model.Point
		var idx []int
		for i := range points {
			if !resolved[i] {
				pending = append(pending, points[i])
				idx = append(idx, i)
			}
		}
		if len(pending) > 0 {
			values, ok, err := s.remote.Lookup(ctx, pending)
			if err != nil {
				s.observe(cacheHits, tileHits, 0, len(pending))
				return elev, err
			}
			for j, i := range idx {
				if !ok[j] {
					continue
				}
				elev[i] = values[j]
				resolved[i] = true
				remoteHits++
				s.writeBack(ctx, points[i], values[j])
			}
		}
	}

	unresolved := 0
	for _, r := range resolved {
		if !r {
			unresolved++
		}
	}
	if unresolved > 0 {
		s.log.Debug(ctx, "elevation points unresolved",
			logging.Int("unresolved", unresolved), logging.Int("total", len(points)))
	}
	s.observe(cacheHits, tileHits, remoteHits, unresolved)
	return elev, nil
}

// Precache warms the point cache for a coverage circle by resolving a
// regular lattice of points across it. It reports how many points were
// resolved.
func (s *Store) Precache(ctx context.Context, center model.Point, radiusKm float64, spacingKm float64) (int, error) {
	if spacingKm <= 0 {
		spacingKm = 0.1
	}
	latRad := center.LatDeg * math.Pi / 180
	lonScale := 111.0 * math.Cos(latRad)
	if math.Abs(lonScale) < 1e-9 {
		lonScale = 1e-9
	}

	var points []model.Point
	for y := -radiusKm; y <= radiusKm; y += spacingKm {
		for x := -radiusKm; x <= radiusKm; x += spacingKm {
			if math.Hypot(x, y) > radiusKm {
				continue
			}
			points = append(points, model.Point{
				LatDeg: center.LatDeg + y/111.0,
				LonDeg: center.LonDeg + x/lonScale,
			})
		}
	}

	const batch = 1000
	resolved := 0
	for start := 0; start < len(points); start += batch {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		end := start + batch
		if end > len(points) {
			end = len(points)
		}
		if _, err := s.LookupBatch(ctx, points[start:end]); err != nil {
			return resolved, err
		}
		resolved += end - start
	}
	return resolved, nil
}

// Cache exposes the cache layer for the export/import surface; nil when
// the store was built without one.
func (s *Store) Cache() *PointCache { return s.cache }

// Tiles exposes the tile layer; nil when absent.
func (s *Store) Tiles() *TileStore { return s.tiles }

func (s *Store) writeBack(ctx context.Context, p model.Point, v float64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(p, v); err != nil {
		s.log.Warn(ctx, "cache write failed", logging.Err(err))
	}
}

func (s *Store) observe(cacheHits, tileHits, remoteHits, unresolved int) {
	if s.metrics != nil {
		s.metrics.ObserveElevationLookups(cacheHits, tileHits, remoteHits, unresolved)
	}
}
