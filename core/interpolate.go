package core

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// polarSamples holds per-radial terrain losses on the fixed polar
// sampling lattice: loss[a][d] is the loss at azimuth a*stepDeg and
// distance distKm[d]. It only ever lives for the duration of one
// coverage run, as interpolation input.
type polarSamples struct {
	distKm  []float64 // ascending
	stepDeg float64   // 360 / number of radials
	loss    [][]float64
}

func newPolarSamples(distKm []float64, azimuthCount int) *polarSamples {
	loss := make([][]float64, azimuthCount)
	for i := range loss {
		loss[i] = make([]float64, len(distKm))
	}
	return &polarSamples{
		distKm:  distKm,
		stepDeg: 360.0 / float64(azimuthCount),
		loss:    loss,
	}
}

// at bilinearly interpolates the lattice at (distKm, azimuthDeg) with
// azimuth wrap-around across 0/360. Queries nearer than the first sample
// ring use the first ring; queries beyond the last use the last.
func (p *polarSamples) at(distKm, azimuthDeg float64) float64 {
	nAz := len(p.loss)

	az := math.Mod(math.Mod(azimuthDeg, 360)+360, 360) / p.stepDeg
	a0 := int(az) % nAz
	a1 := (a0 + 1) % nAz
	wa := az - float64(a0)

	di := sort.SearchFloat64s(p.distKm, distKm)
	if di == 0 {
		return lerp(p.loss[a0][0], p.loss[a1][0], wa)
	}
	if di >= len(p.distKm) {
		last := len(p.distKm) - 1
		return lerp(p.loss[a0][last], p.loss[a1][last], wa)
	}
	d0, d1 := p.distKm[di-1], p.distKm[di]
	wd := 0.0
	if d1 != d0 {
		wd = (distKm - d0) / (d1 - d0)
	}
	lo := lerp(p.loss[a0][di-1], p.loss[a1][di-1], wa)
	hi := lerp(p.loss[a0][di], p.loss[a1][di], wa)
	return lerp(lo, hi, wd)
}

// nearest returns the lattice value at the closest sample, used as the
// fallback when bilinear interpolation produced a non-finite value.
func (p *polarSamples) nearest(distKm, azimuthDeg float64) float64 {
	nAz := len(p.loss)
	az := math.Mod(math.Mod(azimuthDeg, 360)+360, 360) / p.stepDeg
	a := int(math.Round(az)) % nAz

	di := sort.SearchFloat64s(p.distKm, distKm)
	switch {
	case di == 0:
	case di >= len(p.distKm):
		di = len(p.distKm) - 1
	default:
		if distKm-p.distKm[di-1] < p.distKm[di]-distKm {
			di--
		}
	}
	return p.loss[a][di]
}

// toGrid interpolates the polar lattice onto the Cartesian grid. Cells
// inside the first sample ring keep zero loss (the transmitter's own
// cell has no meaningful terrain path), non-finite interpolation results
// fall back to nearest-neighbour, and the result is clamped to >= 0.
func (p *polarSamples) toGrid(g *Grid) [][]float64 {
	out := make2D(g.N)
	minDist := p.distKm[0]
	for row := 0; row < g.N; row++ {
		for col := 0; col < g.N; col++ {
			if g.Masked[row][col] {
				continue
			}
			d := g.DistKm[row][col]
			if d < minDist {
				continue
			}
			v := p.at(d, g.AzimuthDeg[row][col])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = p.nearest(d, g.AzimuthDeg[row][col])
			}
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			out[row][col] = v
		}
	}
	return out
}

// profileResampleFactor densifies radial elevation profiles before
// diffraction analysis so narrow ridges between samples are less likely
// to be stepped over.
const profileResampleFactor = 4

// resampleProfile fits an Akima spline through (distKm, elev) and
// re-samples it at profileResampleFactor times the original density. On
// any fitting failure the original profile is returned unchanged; the
// smoothing is an accuracy refinement, never a correctness requirement.
func resampleProfile(distKm, elev []float64) ([]float64, []float64) {
	if len(distKm) < 4 || len(distKm) != len(elev) {
		return distKm, elev
	}
	var spline interp.AkimaSpline
	if err := spline.Fit(distKm, elev); err != nil {
		return distKm, elev
	}
	n := len(distKm) * profileResampleFactor
	outDist := make([]float64, n)
	outElev := make([]float64, n)
	span := distKm[len(distKm)-1] - distKm[0]
	for i := 0; i < n; i++ {
		d := distKm[0] + span*float64(i)/float64(n-1)
		outDist[i] = d
		outElev[i] = spline.Predict(d)
	}
	return outDist, outElev
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
