package elevation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/signalsfoundry/coverage-engine/internal/logging"
)

// DefaultTileURL is the public skadi-layout SRTM mirror used when no
// other source is configured. Tiles live at {base}/{N43}/{N43W113}.hgt.gz.
const DefaultTileURL = "https://s3.amazonaws.com/elevation-tiles-prod/skadi"

// ErrTileUnavailable is returned when a tile cannot be fetched or parsed.
// Callers fall through to the next elevation source.
var ErrTileUnavailable = errors.New("elevation tile unavailable")

// TileStore manages local HGT tiles: parsed tiles in memory, raw .hgt
// files on disk, and on-demand downloads of missing tiles. A tile whose
// download or parse fails once is not retried for the life of the
// process; transient mirror trouble should not turn every radial into a
// download attempt.
type TileStore struct {
	dir     string
	baseURL string
	client  *http.Client
	log     logging.Logger

	mu     sync.Mutex
	tiles  map[TileKey]*Tile
	failed map[TileKey]struct{}
}

// TileStoreOption configures a TileStore.
type TileStoreOption func(*TileStore)

// WithTileURL overrides the download mirror.
func WithTileURL(base string) TileStoreOption {
	return func(s *TileStore) {
		if base != "" {
			s.baseURL = base
		}
	}
}

// WithTileHTTPClient overrides the HTTP client used for downloads.
func WithTileHTTPClient(c *http.Client) TileStoreOption {
	return func(s *TileStore) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTileLogger sets the structured logger. Defaults to Noop.
func WithTileLogger(l logging.Logger) TileStoreOption {
	return func(s *TileStore) {
		if l != nil {
			s.log = l
		}
	}
}

// NewTileStore creates a store rooted at dir, creating it if needed.
func NewTileStore(dir string, opts ...TileStoreOption) (*TileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tile store: %w", err)
	}
	s := &TileStore{
		dir:     dir,
		baseURL: DefaultTileURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     logging.Noop(),
		tiles:   make(map[TileKey]*Tile),
		failed:  make(map[TileKey]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Elevation resolves a single coordinate from the covering tile, loading
// or downloading the tile on first use. ok is false when the tile is
// unavailable or the sample is void.
func (s *TileStore) Elevation(ctx context.Context, latDeg, lonDeg float64) (float64, bool) {
	tile, err := s.tile(ctx, keyFor(latDeg, lonDeg))
	if err != nil {
		return 0, false
	}
	return tile.Elevation(latDeg, lonDeg)
}

func (s *TileStore) tile(ctx context.Context, key TileKey) (*Tile, error) {
	s.mu.Lock()
	if t, ok := s.tiles[key]; ok {
		s.mu.Unlock()
		return t, nil
	}
	if _, bad := s.failed[key]; bad {
		s.mu.Unlock()
		return nil, ErrTileUnavailable
	}
	s.mu.Unlock()

	t, err := s.load(ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed[key] = struct{}{}
		s.log.Warn(ctx, "tile unavailable", logging.String("tile", key.Name()), logging.Err(err))
		return nil, ErrTileUnavailable
	}
	s.tiles[key] = t
	return t, nil
}

// load reads the tile from disk, downloading it first when absent.
func (s *TileStore) load(ctx context.Context, key TileKey) (*Tile, error) {
	path := filepath.Join(s.dir, key.Name()+".hgt")

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		raw, err = s.download(ctx, key)
		if err != nil {
			return nil, err
		}
		// Best effort; a read-only tile dir still serves from memory.
		if werr := os.WriteFile(path, raw, 0o644); werr != nil {
			s.log.Warn(ctx, "could not persist tile", logging.String("tile", key.Name()), logging.Err(werr))
		}
	} else if err != nil {
		return nil, err
	}
	return parseTile(key, raw)
}

func (s *TileStore) download(ctx context.Context, key TileKey) ([]byte, error) {
	name := key.Name()
	url := fmt.Sprintf("%s/%s/%s.hgt.gz", s.baseURL, name[:3], name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	s.log.Info(ctx, "tile downloaded", logging.String("tile", name), logging.Int("bytes", len(raw)))
	return raw, nil
}

// CachedTiles reports how many parsed tiles are held in memory.
func (s *TileStore) CachedTiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tiles)
}
