package core

import (
	"math"
	"sort"
)

const (
	// maxDiffractionLossDB caps both per-edge and combined losses. Deep
	// shadow beyond this is indistinguishable for coverage purposes.
	maxDiffractionLossDB = 80.0

	// fresnelCorrectionCapDB bounds the grazing-path correction applied
	// when the direct ray clears all terrain but intrudes into the 60%
	// first Fresnel zone.
	fresnelCorrectionCapDB = 10.0

	// hillMergeGapSamples is the largest run of clear samples still
	// bridged into a single obstruction group. Gaps this small are
	// sampling noise on a single physical hill, not separate edges.
	hillMergeGapSamples = 5
)

// TerrainDiffractionLoss computes the Epstein-Peterson style diffraction
// loss in dB for a single receiver on a terrain radial.
//
// The profile covers the whole radial, but only samples between the
// transmitter and rxDistanceKm participate: the line of sight is drawn to
// the receiver at rxDistanceKm, not to the radial's end. Evaluating each
// receiver against its own truncated profile is what prevents shadow
// tunneling, where a distant hill would otherwise blank out a nearer,
// unobstructed valley on the same radial.
//
// profile holds ground elevations in metres and distancesKm their
// distances from the transmitter (ascending, same length). Heights are
// metres above ground at each end.
func TerrainDiffractionLoss(txHeightM, rxHeightM float64, profile []float64, frequencyMHz float64, distancesKm []float64, rxDistanceKm float64) float64 {
	if len(profile) < 2 || len(profile) != len(distancesKm) {
		return 0
	}
	if frequencyMHz <= 0 || rxDistanceKm <= 0 {
		return 0
	}

	// Truncate at the receiver. SearchFloat64s finds the first sample
	// beyond the receiver distance; we keep everything up to and
	// including the receiver's own sample.
	end := sort.SearchFloat64s(distancesKm, rxDistanceKm)
	if end < len(distancesKm) && distancesKm[end] <= rxDistanceKm {
		end++
	}
	if end < 2 {
		return 0
	}
	ground := profile[:end]
	dists := distancesKm[:end]

	rxDistKm := dists[end-1]
	if rxDistKm <= 0 {
		return 0
	}

	txElev := sanitize(ground[0]) + txHeightM
	rxElev := sanitize(ground[end-1]) + rxHeightM

	// Clearance per sample: LOS elevation minus terrain. Negative means
	// the terrain pokes above the direct ray.
	clearance := make([]float64, end)
	for i := range ground {
		los := txElev + (rxElev-txElev)*(dists[i]/rxDistKm)
		clearance[i] = los - sanitize(ground[i])
	}

	hills := groupObstructions(clearance)
	if len(hills) == 0 {
		return fresnelGrazingLoss(clearance, dists, frequencyMHz, rxDistKm)
	}

	// One knife edge per hill at its deepest intrusion, combined as
	// parallel loss paths (power addition), not as a dB sum.
	var powerSum float64
	for _, h := range hills {
		edge := h.start
		for i := h.start + 1; i <= h.end; i++ {
			if clearance[i] < clearance[edge] {
				edge = i
			}
		}
		d1 := dists[edge]
		d2 := rxDistKm - dists[edge]
		loss := knifeEdgeLoss(-clearance[edge], d1, d2, frequencyMHz)
		powerSum += math.Pow(10, -loss/10)
	}
	total := -10 * math.Log10(powerSum)
	return clip(total, 0, maxDiffractionLossDB)
}

// WholePathDiffractionLoss evaluates a single knife edge at the worst
// obstruction of the entire radial. It exists as a reference point for
// comparing against the segment-by-segment computation and must not be
// used per grid cell: one far hill would then shadow every nearer point
// on the radial.
func WholePathDiffractionLoss(txHeightM, rxHeightM float64, profile []float64, frequencyMHz float64, distancesKm []float64) float64 {
	if len(profile) < 2 || len(profile) != len(distancesKm) || frequencyMHz <= 0 {
		return 0
	}
	total := distancesKm[len(distancesKm)-1]
	if total <= 0 {
		return 0
	}
	txElev := sanitize(profile[0]) + txHeightM
	rxElev := sanitize(profile[len(profile)-1]) + rxHeightM

	worst := 0.0
	worstIdx := -1
	for i := range profile {
		los := txElev + (rxElev-txElev)*(distancesKm[i]/total)
		obstruction := sanitize(profile[i]) - los
		if obstruction > worst {
			worst = obstruction
			worstIdx = i
		}
	}
	if worstIdx < 0 {
		return 0
	}
	d1 := distancesKm[worstIdx]
	d2 := total - distancesKm[worstIdx]
	return knifeEdgeLoss(worst, d1, d2, frequencyMHz)
}

type span struct{ start, end int }

// groupObstructions merges contiguous obstructed samples (clearance < 0)
// into hill groups, bridging clear gaps of up to hillMergeGapSamples.
// Single-sample groups are discarded as noise.
func groupObstructions(clearance []float64) []span {
	var hills []span
	cur := span{start: -1}
	gap := 0
	for i, c := range clearance {
		if c < 0 {
			if cur.start < 0 {
				cur = span{start: i, end: i}
			} else {
				cur.end = i
			}
			gap = 0
			continue
		}
		if cur.start >= 0 {
			gap++
			if gap > hillMergeGapSamples {
				if cur.end > cur.start {
					hills = append(hills, cur)
				}
				cur = span{start: -1}
				gap = 0
			}
		}
	}
	if cur.start >= 0 && cur.end > cur.start {
		hills = append(hills, cur)
	}
	return hills
}

// fresnelGrazingLoss handles the no-obstruction case: when the midpoint
// clearance still intrudes into 60% of the first Fresnel zone, a bounded
// single-edge correction applies; otherwise the path is genuinely free.
func fresnelGrazingLoss(clearance, distsKm []float64, frequencyMHz, rxDistKm float64) float64 {
	mid := len(clearance) / 2
	d1 := distsKm[mid]
	d2 := rxDistKm - d1
	if d1 <= 0 || d2 <= 0 {
		return 0
	}
	r1 := firstFresnelRadiusM(d1, d2, frequencyMHz)
	if clearance[mid] >= 0.6*r1 {
		return 0
	}
	loss := knifeEdgeLoss(-clearance[mid], d1, d2, frequencyMHz)
	return clip(loss, 0, fresnelCorrectionCapDB)
}

// firstFresnelRadiusM is the first Fresnel zone radius in metres at a
// point d1/d2 kilometres from each path end.
func firstFresnelRadiusM(d1Km, d2Km, frequencyMHz float64) float64 {
	fGHz := frequencyMHz / 1e3
	if fGHz <= 0 {
		return 0
	}
	return 17.32 * math.Sqrt(d1Km*d2Km/(fGHz*(d1Km+d2Km)))
}

// knifeEdgeLoss is the Fresnel-Kirchhoff single-edge loss in dB for an
// obstruction of height hM (metres above the direct ray; negative when
// the ray clears the edge) with path segments d1/d2 in kilometres.
//
//	v = h * sqrt(2 (d1+d2) / (lambda d1 d2))
//	L = 6.9 + 20 log10(sqrt((v-0.1)^2 + 1) + v - 0.1)   for v > -0.78
func knifeEdgeLoss(hM, d1Km, d2Km, frequencyMHz float64) float64 {
	if d1Km <= 0 || d2Km <= 0 {
		return 0
	}
	lambda := WavelengthM(frequencyMHz)
	if lambda <= 0 {
		return 0
	}
	d1 := d1Km * 1e3
	d2 := d2Km * 1e3
	v := hM * math.Sqrt(2*(d1+d2)/(lambda*d1*d2))
	if math.IsNaN(v) || v <= -0.78 {
		return 0
	}
	loss := 6.9 + 20*math.Log10(math.Sqrt((v-0.1)*(v-0.1)+1)+v-0.1)
	return clip(loss, 0, maxDiffractionLossDB)
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
