package elevation

import (
	"path/filepath"
	"testing"

	"github.com/signalsfoundry/coverage-engine/model"
)

func TestPointCacheRoundsToCell(t *testing.T) {
	cache, err := OpenPointCache("")
	if err != nil {
		t.Fatalf("OpenPointCache: %v", err)
	}
	defer cache.Close()

	if err := cache.Put(model.Point{LatDeg: 43.46653, LonDeg: -112.03401}, 1432.5); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// A query differing only in the 5th decimal shares the ~11 m cell.
	got, ok := cache.Get(model.Point{LatDeg: 43.46651, LonDeg: -112.03399})
	if !ok || got != 1432.5 {
		t.Fatalf("Get = %v, %v; want 1432.5, true", got, ok)
	}
	// A query one cell over misses.
	if _, ok := cache.Get(model.Point{LatDeg: 43.4670, LonDeg: -112.0340}); ok {
		t.Fatal("Get hit a different cell")
	}
	if cache.Len() != 1 {
		t.Fatalf("Len = %d, want 1", cache.Len())
	}
}

func TestPointCachePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	cache, err := OpenPointCache(path)
	if err != nil {
		t.Fatalf("OpenPointCache: %v", err)
	}
	if err := cache.Put(model.Point{LatDeg: 43.4665, LonDeg: -112.0340}, 1432.5); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := cache.Put(model.Point{LatDeg: 43.4665, LonDeg: -112.0340}, 1433.0); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenPointCache(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Get(model.Point{LatDeg: 43.4665, LonDeg: -112.0340})
	if !ok || got != 1433.0 {
		t.Fatalf("reopened Get = %v, %v; want 1433.0, true", got, ok)
	}
	if reopened.Len() != 1 {
		t.Fatalf("reopened Len = %d, want 1", reopened.Len())
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src, err := OpenPointCache("")
	if err != nil {
		t.Fatalf("OpenPointCache: %v", err)
	}
	defer src.Close()

	center := model.Point{LatDeg: 43.4665, LonDeg: -112.0340}
	inside := map[model.Point]float64{
		{LatDeg: 43.4665, LonDeg: -112.0340}: 1432.5,
		{LatDeg: 43.4700, LonDeg: -112.0300}: 1440.25,
		{LatDeg: 43.4600, LonDeg: -112.0400}: 1425.0,
	}
	for p, v := range inside {
		if err := src.Put(p, v); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	// Far away; must not be exported for a 5 km circle.
	if err := src.Put(model.Point{LatDeg: 44.5, LonDeg: -112.0}, 2000); err != nil {
		t.Fatalf("Put outlier: %v", err)
	}

	exported := src.ExportCircle(center, 5)
	if len(exported) != len(inside) {
		t.Fatalf("exported %d entries, want %d", len(exported), len(inside))
	}

	dst, err := OpenPointCache("")
	if err != nil {
		t.Fatalf("OpenPointCache dst: %v", err)
	}
	defer dst.Close()
	if err := dst.Import(exported); err != nil {
		t.Fatalf("Import: %v", err)
	}

	for p, want := range inside {
		got, ok := dst.Get(p)
		if !ok || got != want {
			t.Fatalf("round-tripped Get(%v) = %v, %v; want %v, true", p, got, ok, want)
		}
	}
}

func TestImportRejectsMalformedKeys(t *testing.T) {
	cache, err := OpenPointCache("")
	if err != nil {
		t.Fatalf("OpenPointCache: %v", err)
	}
	defer cache.Close()

	if err := cache.Import(map[string]float64{"not-a-key": 1}); err == nil {
		t.Fatal("Import accepted a key without a comma")
	}
	if err := cache.Import(map[string]float64{"abc,def": 1}); err == nil {
		t.Fatal("Import accepted non-numeric coordinates")
	}
}
