package model

const (
	// MaskedPowerDBm marks grid cells outside the coverage radius.
	MaskedPowerDBm = -999.0
	// SanitizedPowerDBm replaces non-finite in-radius values. It is
	// strongly negative but distinguishable from MaskedPowerDBm so a
	// failed cell never looks like an out-of-radius cell.
	SanitizedPowerDBm = -150.0
)

// CoverageStats summarises the unmasked cells of a coverage grid.
type CoverageStats struct {
	MinPowerDBm  float64 `json:"MinPowerDBm"`
	MaxPowerDBm  float64 `json:"MaxPowerDBm"`
	MeanPowerDBm float64 `json:"MeanPowerDBm"`

	PointsAboveFloor int `json:"PointsAboveFloor"`
	TotalPoints      int `json:"TotalPoints"`

	// Terrain loss aggregates, present only when terrain was enabled.
	MinTerrainLossDB  *float64 `json:"MinTerrainLossDB,omitempty"`
	MaxTerrainLossDB  *float64 `json:"MaxTerrainLossDB,omitempty"`
	MeanTerrainLossDB *float64 `json:"MeanTerrainLossDB,omitempty"`
}

// CoverageResult is the read-only outcome of one coverage computation.
// Grids are row-major [y][x]; XKm/YKm are the grid axes relative to the
// transmitter. The result is created fresh per request and never mutated
// by the engine afterwards.
type CoverageResult struct {
	XKm []float64 `json:"XKm"`
	YKm []float64 `json:"YKm"`

	// RxPowerDBm holds received power per cell; masked cells carry
	// MaskedPowerDBm. TerrainLossDB is nil when terrain was disabled.
	RxPowerDBm    [][]float64 `json:"RxPowerDBm"`
	TerrainLossDB [][]float64 `json:"TerrainLossDB,omitempty"`
	Masked        [][]bool    `json:"Masked"`

	EIRPdBm float64       `json:"EIRPdBm"`
	Stats   CoverageStats `json:"Stats"`
}

// SampleAt returns the received power at a geographic offset from the
// transmitter, expressed in kilometres east (x) and north (y), using
// nearest-cell sampling. ok is false outside the grid or on a masked cell.
func (r *CoverageResult) SampleAt(xKm, yKm float64) (float64, bool) {
	if len(r.XKm) == 0 || len(r.YKm) == 0 {
		return 0, false
	}
	col := nearestIndex(r.XKm, xKm)
	row := nearestIndex(r.YKm, yKm)
	if row < 0 || col < 0 {
		return 0, false
	}
	if r.Masked[row][col] {
		return 0, false
	}
	return r.RxPowerDBm[row][col], true
}

// nearestIndex finds the index of the closest axis value, or -1 when the
// query lies outside the axis span.
func nearestIndex(axis []float64, v float64) int {
	n := len(axis)
	if v < axis[0] || v > axis[n-1] {
		return -1
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if axis[mid] <= v {
			lo = mid
		} else {
			hi = mid
		}
	}
	if v-axis[lo] <= axis[hi]-v {
		return lo
	}
	return hi
}
