// Package elevation resolves ground elevations for geographic points.
//
// The Store layers three sources: an in-memory/sqlite point cache, local
// SRTM HGT tiles (downloaded on demand), and a remote elevation HTTP API
// as the last resort. Points no source can resolve report 0 m.
package elevation

import (
	"encoding/binary"
	"fmt"
	"math"
)

// voidSample is the SRTM sentinel for missing data inside a tile.
const voidSample = -32768

// Accepted raw tile sizes: 3 arc-second (1201x1201) and 1 arc-second
// (3601x3601) grids of big-endian int16 samples.
const (
	srtm3Rows = 1201
	srtm1Rows = 3601

	srtm3Bytes = srtm3Rows * srtm3Rows * 2
	srtm1Bytes = srtm1Rows * srtm1Rows * 2
)

// TileKey identifies a 1x1 degree tile by its south-west corner.
type TileKey struct {
	Lat int // degrees, floor of latitude
	Lon int // degrees, floor of longitude
}

// keyFor maps a coordinate onto its containing tile.
func keyFor(latDeg, lonDeg float64) TileKey {
	return TileKey{
		Lat: int(math.Floor(latDeg)),
		Lon: int(math.Floor(lonDeg)),
	}
}

// Name returns the canonical SRTM tile name, e.g. "N43W113" for the tile
// whose south-west corner is 43N 113W.
func (k TileKey) Name() string {
	ns, lat := byte('N'), k.Lat
	if lat < 0 {
		ns, lat = 'S', -lat
	}
	ew, lon := byte('E'), k.Lon
	if lon < 0 {
		ew, lon = 'W', -lon
	}
	return fmt.Sprintf("%c%02d%c%03d", ns, lat, ew, lon)
}

// Tile is one parsed HGT tile. Samples are stored row-major from the
// north-west corner, matching the file layout.
type Tile struct {
	key     TileKey
	rows    int
	samples []int16
}

// parseTile decodes raw HGT bytes, detecting the grid size from the file
// length.
func parseTile(key TileKey, raw []byte) (*Tile, error) {
	var rows int
	switch len(raw) {
	case srtm3Bytes:
		rows = srtm3Rows
	case srtm1Bytes:
		rows = srtm1Rows
	default:
		return nil, fmt.Errorf("tile %s: unexpected size %d bytes", key.Name(), len(raw))
	}

	samples := make([]int16, rows*rows)
	for i := range samples {
		samples[i] = int16(binary.BigEndian.Uint16(raw[2*i:]))
	}
	return &Tile{key: key, rows: rows, samples: samples}, nil
}

// Elevation bilinearly interpolates the tile at the given coordinate.
// Void samples are excluded from the interpolation; a cell whose four
// corners are all void reports 0 and false.
func (t *Tile) Elevation(latDeg, lonDeg float64) (float64, bool) {
	n := t.rows - 1

	// Fractional position within the tile. Rows count down from the
	// north edge.
	fx := (lonDeg - float64(t.key.Lon)) * float64(n)
	fy := (float64(t.key.Lat) + 1 - latDeg) * float64(n)

	x0 := clampIndex(int(fx), n-1)
	y0 := clampIndex(int(fy), n-1)
	wx := fx - float64(x0)
	wy := fy - float64(y0)

	corners := [4]int16{
		t.sample(y0, x0),
		t.sample(y0, x0+1),
		t.sample(y0+1, x0),
		t.sample(y0+1, x0+1),
	}
	weights := [4]float64{
		(1 - wx) * (1 - wy),
		wx * (1 - wy),
		(1 - wx) * wy,
		wx * wy,
	}

	// Redistribute the weight of void corners over the valid ones.
	var sum, wsum float64
	for i, c := range corners {
		if c == voidSample {
			continue
		}
		sum += float64(c) * weights[i]
		wsum += weights[i]
	}
	if wsum == 0 {
		return 0, false
	}
	return sum / wsum, true
}

func (t *Tile) sample(row, col int) int16 {
	return t.samples[row*t.rows+col]
}

func clampIndex(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}
