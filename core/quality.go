package core

import (
	"math"

	"github.com/signalsfoundry/coverage-engine/model"
)

// TerrainAzimuthSamples is the number of radials sampled for terrain
// loss: 3600 radials, one every 0.1 degree. It is intentionally a fixed
// constant and is never scaled by the quality preset. Scaling it down is
// what produces blocky, pie-slice coverage renders, and coarse radials
// combined with long profiles are how shadow tunneling re-enters through
// the back door. Quality only tunes the grid and per-radial density.
const TerrainAzimuthSamples = 3600

// Sampling bounds for the adaptive table. Custom requests bypass the
// table (and these clamps) entirely; the caller owns those numbers.
const (
	minGridResolution  = 400
	maxGridResolution  = 2500
	minDistanceSamples = 800
	maxDistanceSamples = 8000
)

// SamplingPlan is the resolved sampling density for one coverage run.
type SamplingPlan struct {
	// GridResolution is the Cartesian grid side length in cells.
	GridResolution int
	// DistanceSamples is the number of elevation samples per radial.
	DistanceSamples int
	// AzimuthSamples is always TerrainAzimuthSamples except for custom
	// requests, and is carried here so the pipeline never reads the
	// constant from two places.
	AzimuthSamples int
}

// ResolveSampling maps {quality, zoom, radius} onto a sampling plan via a
// deterministic multiplier table: a radius-dependent base grid, scaled by
// the quality preset and the caller's zoom hint, clamped to fixed bounds.
// It is a pure function so the adaptive behaviour stays testable and
// cannot be silently bypassed by pipeline code.
func ResolveSampling(req model.CoverageRequest) SamplingPlan {
	if req.Quality == model.QualityCustom {
		return customPlan(req)
	}

	zoom := zoomScale(req.ZoomHint)
	gridMult, distMult := qualityScale(req.Quality)

	grid := int(math.Round(baseGridFor(req.RadiusKm) * gridMult * zoom))
	dist := int(math.Round(2000 * distMult * zoom))

	return SamplingPlan{
		GridResolution:  clampInt(grid, minGridResolution, maxGridResolution),
		DistanceSamples: clampInt(dist, minDistanceSamples, maxDistanceSamples),
		AzimuthSamples:  TerrainAzimuthSamples,
	}
}

func customPlan(req model.CoverageRequest) SamplingPlan {
	plan := SamplingPlan{
		GridResolution:  req.CustomGridResolution,
		DistanceSamples: req.CustomDistanceSamples,
		AzimuthSamples:  TerrainAzimuthSamples,
	}
	if plan.GridResolution < 2 {
		plan.GridResolution = minGridResolution
	}
	if plan.DistanceSamples < 2 {
		plan.DistanceSamples = minDistanceSamples
	}
	return plan
}

// baseGridFor shrinks the base grid as the radius grows; beyond ~100 km
// per-cell detail is invisible at any practical zoom and the cell count
// is what dominates runtime.
func baseGridFor(radiusKm float64) float64 {
	switch {
	case radiusKm <= 20:
		return 1200
	case radiusKm <= 60:
		return 1000
	case radiusKm <= 120:
		return 800
	default:
		return 600
	}
}

func qualityScale(q model.Quality) (grid, dist float64) {
	switch q {
	case model.QualityLow:
		return 0.5, 0.5
	case model.QualityHigh:
		return 1.5, 2.0
	case model.QualityUltra:
		return 2.0, 4.0
	default: // Medium and anything unrecognised
		return 1.0, 1.0
	}
}

func zoomScale(zoom int) float64 {
	switch {
	case zoom <= 0:
		return 1.0 // no hint supplied
	case zoom <= 10:
		return 0.8
	case zoom <= 13:
		return 1.0
	default:
		return 1.25
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
