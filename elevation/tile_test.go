package elevation

import (
	"encoding/binary"
	"testing"
)

// rawTile builds HGT bytes for a uniform tile.
func rawTile(rows int, value int16) []byte {
	raw := make([]byte, rows*rows*2)
	for i := 0; i < rows*rows; i++ {
		binary.BigEndian.PutUint16(raw[2*i:], uint16(value))
	}
	return raw
}

func TestKeyForAndName(t *testing.T) {
	for _, tc := range []struct {
		lat, lon float64
		name     string
	}{
		{43.4665, -112.0340, "N43W113"},
		{43.0, -112.0, "N43W112"},
		{-33.9, 18.4, "S34E018"},
		{0.5, 0.5, "N00E000"},
		{-0.5, -0.5, "S01W001"},
	} {
		key := keyFor(tc.lat, tc.lon)
		if got := key.Name(); got != tc.name {
			t.Fatalf("keyFor(%v, %v).Name() = %q, want %q", tc.lat, tc.lon, got, tc.name)
		}
	}
}

func TestParseTileDetectsBothResolutions(t *testing.T) {
	key := keyFor(43.5, -112.5)
	for _, rows := range []int{srtm3Rows, srtm1Rows} {
		tile, err := parseTile(key, rawTile(rows, 1500))
		if err != nil {
			t.Fatalf("parseTile(%d rows): %v", rows, err)
		}
		if tile.rows != rows {
			t.Fatalf("detected %d rows, want %d", tile.rows, rows)
		}
	}
}

func TestParseTileRejectsBadSize(t *testing.T) {
	if _, err := parseTile(keyFor(1, 1), make([]byte, 1000)); err == nil {
		t.Fatal("parseTile accepted a truncated payload")
	}
}

func TestElevationUniformTile(t *testing.T) {
	tile, err := parseTile(keyFor(43.2, -112.7), rawTile(srtm3Rows, 1432))
	if err != nil {
		t.Fatalf("parseTile: %v", err)
	}
	for _, pt := range []struct{ lat, lon float64 }{
		{43.0001, -112.9999},
		{43.5, -112.5},
		{43.9999, -112.0001},
	} {
		got, ok := tile.Elevation(pt.lat, pt.lon)
		if !ok || got != 1432 {
			t.Fatalf("Elevation(%v, %v) = %v, %v; want 1432, true", pt.lat, pt.lon, got, ok)
		}
	}
}

func TestElevationBilinearBetweenSamples(t *testing.T) {
	key := keyFor(10.5, 20.5)
	raw := rawTile(srtm3Rows, 100)
	// Raise the tile's north-west sample to 300; just inside that corner
	// the interpolated value must sit strictly between 100 and 300.
	binary.BigEndian.PutUint16(raw[0:], uint16(300))
	tile, err := parseTile(key, raw)
	if err != nil {
		t.Fatalf("parseTile: %v", err)
	}

	step := 1.0 / float64(srtm3Rows-1)
	got, ok := tile.Elevation(11-step/2, 20+step/2)
	if !ok {
		t.Fatal("Elevation missed a valid cell")
	}
	if got <= 100 || got >= 300 {
		t.Fatalf("interpolated value %v not between the corner samples", got)
	}
}

func TestElevationVoidHandling(t *testing.T) {
	key := keyFor(10.5, 20.5)

	// Entirely void tile: no valid corners anywhere.
	tile, err := parseTile(key, rawTile(srtm3Rows, voidSample))
	if err != nil {
		t.Fatalf("parseTile: %v", err)
	}
	if _, ok := tile.Elevation(10.5, 20.5); ok {
		t.Fatal("void tile produced a value")
	}

	// A single void corner redistributes its weight to the valid ones.
	raw := rawTile(srtm3Rows, 250)
	void := int16(voidSample)
	binary.BigEndian.PutUint16(raw[0:], uint16(void))
	tile, err = parseTile(key, raw)
	if err != nil {
		t.Fatalf("parseTile: %v", err)
	}
	step := 1.0 / float64(srtm3Rows-1)
	got, ok := tile.Elevation(11-step/2, 20+step/2)
	if !ok {
		t.Fatal("cell with three valid corners reported no data")
	}
	if got != 250 {
		t.Fatalf("void-corner interpolation = %v, want 250", got)
	}
}
