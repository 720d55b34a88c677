package core

import (
	"math"
	"testing"
)

func TestPolarSamplesBilinear(t *testing.T) {
	p := newPolarSamples([]float64{1, 2, 3}, 4) // radials at 0, 90, 180, 270
	for a := range p.loss {
		for d := range p.loss[a] {
			p.loss[a][d] = float64(a*10 + d)
		}
	}

	// Exact lattice hits.
	if got := p.at(2, 90); got != 11 {
		t.Fatalf("at(2, 90) = %v, want 11", got)
	}
	// Midway in azimuth between radial 0 and radial 1 at distance 1.
	if got := p.at(1, 45); got != 5 {
		t.Fatalf("at(1, 45) = %v, want 5", got)
	}
	// Midway in distance on radial 180.
	if got := p.at(2.5, 180); got != 21.5 {
		t.Fatalf("at(2.5, 180) = %v, want 21.5", got)
	}
}

func TestPolarSamplesWrapAcrossNorth(t *testing.T) {
	p := newPolarSamples([]float64{1}, 4)
	p.loss[0][0] = 0  // azimuth 0
	p.loss[3][0] = 40 // azimuth 270
	// 315 degrees sits midway between radial 270 (40) and radial 0 (0).
	if got := p.at(1, 315); got != 20 {
		t.Fatalf("at(1, 315) = %v, want 20", got)
	}
	// Negative azimuths normalise onto the same seam.
	if got := p.at(1, -45); got != 20 {
		t.Fatalf("at(1, -45) = %v, want 20", got)
	}
}

func TestPolarSamplesBeyondLastRingHoldsEdge(t *testing.T) {
	p := newPolarSamples([]float64{1, 2}, 4)
	p.loss[0] = []float64{3, 7}
	if got := p.at(10, 0); got != 7 {
		t.Fatalf("at beyond last ring = %v, want edge 7", got)
	}
	if got := p.at(0.2, 0); got != 3 {
		t.Fatalf("at inside first ring = %v, want first ring 3", got)
	}
}

func TestToGridNearestFallbackAndClamp(t *testing.T) {
	g := newGrid(3, 5)
	p := newPolarSamples([]float64{1, 2, 3}, 8)
	for a := range p.loss {
		for d := range p.loss[a] {
			p.loss[a][d] = 5
		}
	}
	// Poison one radial so bilinear yields NaN there; the fallback must
	// pick a finite neighbour value.
	p.loss[2][1] = math.NaN()

	out := p.toGrid(g)
	for row := 0; row < g.N; row++ {
		for col := 0; col < g.N; col++ {
			v := out[row][col]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("cell (%d,%d) is non-finite: %v", row, col, v)
			}
			if v < 0 {
				t.Fatalf("cell (%d,%d) negative: %v", row, col, v)
			}
			if g.Masked[row][col] && v != 0 {
				t.Fatalf("masked cell (%d,%d) got terrain loss %v", row, col, v)
			}
		}
	}
}

func TestResampleProfilePreservesLinearTerrain(t *testing.T) {
	n := 20
	dist := make([]float64, n)
	elev := make([]float64, n)
	for i := range dist {
		dist[i] = float64(i) * 0.5
		elev[i] = 100 + 3*dist[i]
	}

	outDist, outElev := resampleProfile(dist, elev)
	if len(outDist) != n*profileResampleFactor {
		t.Fatalf("resampled length = %d, want %d", len(outDist), n*profileResampleFactor)
	}
	if outDist[0] != dist[0] || outDist[len(outDist)-1] != dist[n-1] {
		t.Fatalf("resampled span [%v,%v] differs from input [%v,%v]",
			outDist[0], outDist[len(outDist)-1], dist[0], dist[n-1])
	}
	for i, d := range outDist {
		want := 100 + 3*d
		if math.Abs(outElev[i]-want) > 1e-6 {
			t.Fatalf("resampled elevation at %v km = %v, want %v", d, outElev[i], want)
		}
	}
}

func TestResampleProfileShortInputUnchanged(t *testing.T) {
	dist := []float64{0, 1, 2}
	elev := []float64{10, 20, 30}
	outDist, outElev := resampleProfile(dist, elev)
	if &outDist[0] != &dist[0] || &outElev[0] != &elev[0] {
		t.Fatal("short profile was not returned as-is")
	}
}

func TestGridMaskingAndPolarDerivation(t *testing.T) {
	g := newGrid(10, 21)
	if g.XKm[0] != -10 || g.XKm[20] != 10 {
		t.Fatalf("x axis spans [%v,%v], want [-10,10]", g.XKm[0], g.XKm[20])
	}

	center := 10
	if g.DistKm[center][center] != 0 {
		t.Fatalf("center distance = %v, want 0", g.DistKm[center][center])
	}
	// Due north of the transmitter: azimuth 0; due east: 90.
	if az := g.AzimuthDeg[center+5][center]; az != 0 {
		t.Fatalf("northward azimuth = %v, want 0", az)
	}
	if az := g.AzimuthDeg[center][center+5]; az != 90 {
		t.Fatalf("eastward azimuth = %v, want 90", az)
	}

	inside := 0
	for row := 0; row < g.N; row++ {
		for col := 0; col < g.N; col++ {
			masked := g.DistKm[row][col] > g.RadiusKm
			if masked != g.Masked[row][col] {
				t.Fatalf("cell (%d,%d) dist %v: masked = %v", row, col, g.DistKm[row][col], g.Masked[row][col])
			}
			if !masked {
				inside++
			}
		}
	}
	if inside != g.InsideCount {
		t.Fatalf("InsideCount = %d, want %d", g.InsideCount, inside)
	}
}
