package core

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Grid is the Cartesian working grid for one coverage run: axes in
// kilometres relative to the transmitter (x east, y north), derived polar
// coordinates per cell, and the out-of-radius mask. Masked cells are
// excluded from every later stage and from statistics.
type Grid struct {
	N        int
	RadiusKm float64

	XKm []float64
	YKm []float64

	DistKm     [][]float64
	AzimuthDeg [][]float64
	Masked     [][]bool

	// InsideCount is the number of unmasked cells.
	InsideCount int
}

// newGrid builds an n x n grid spanning +-radiusKm around the origin and
// derives per-cell distance and azimuth (degrees clockwise from north).
func newGrid(radiusKm float64, n int) *Grid {
	g := &Grid{
		N:          n,
		RadiusKm:   radiusKm,
		XKm:        make([]float64, n),
		YKm:        make([]float64, n),
		DistKm:     make2D(n),
		AzimuthDeg: make2D(n),
		Masked:     make([][]bool, n),
	}
	floats.Span(g.XKm, -radiusKm, radiusKm)
	floats.Span(g.YKm, -radiusKm, radiusKm)

	for row := 0; row < n; row++ {
		g.Masked[row] = make([]bool, n)
		y := g.YKm[row]
		for col := 0; col < n; col++ {
			x := g.XKm[col]
			d := math.Hypot(x, y)
			g.DistKm[row][col] = d
			az := math.Atan2(x, y) * 180 / math.Pi
			if az < 0 {
				az += 360
			}
			g.AzimuthDeg[row][col] = az
			if d > radiusKm {
				g.Masked[row][col] = true
			} else {
				g.InsideCount++
			}
		}
	}
	return g
}

func make2D(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}
