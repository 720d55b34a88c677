package core

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Attribute spellings accepted by the pattern parser, tried in order.
// Exporters disagree on these names; anything else is a hard parse error
// rather than a silently empty pattern.
var (
	angleAttrNames = []string{"angle", "deg"}
	gainAttrNames  = []string{"gain", "db"}
)

// Pattern is a directional antenna gain table: relative gain in dB by
// azimuth (wrap-around over [0,360)) and by elevation (clamped to
// [-90,90]), plus the absolute peak gain in dBi.
//
// Convention: pattern entries are relative to the peak (0 dB at
// boresight, negative off-axis) and MaxGain carries the absolute peak, so
// Gain() = MaxGain + azimuth relative + elevation relative. This is the
// single supported convention; loaders normalise into it.
//
// A Pattern is always populated: NewOmniPattern seeds a uniform 0 dB
// pattern and a failed load leaves the previous tables untouched.
type Pattern struct {
	azimuth   map[float64]float64
	elevation map[float64]float64

	// Sorted key caches, rebuilt whenever the tables are replaced.
	azAngles []float64
	elAngles []float64

	maxGain float64
}

// NewOmniPattern returns a uniform 0 dBi pattern sampled every degree.
func NewOmniPattern() *Pattern {
	az := make(map[float64]float64, 360)
	for a := 0; a < 360; a++ {
		az[float64(a)] = 0
	}
	el := make(map[float64]float64, 181)
	for a := -90; a <= 90; a++ {
		el[float64(a)] = 0
	}
	p := &Pattern{}
	p.replace(az, el, 0)
	return p
}

// MaxGain is the absolute peak gain in dBi.
func (p *Pattern) MaxGain() float64 { return p.maxGain }

// Gain returns the absolute gain in dBi toward the given azimuth
// (degrees clockwise from north) and elevation (degrees above horizon).
func (p *Pattern) Gain(azimuthDeg, elevationDeg float64) float64 {
	return p.maxGain + interpolateAngular(p.azimuth, p.azAngles, azimuthDeg, true) +
		interpolateAngular(p.elevation, p.elAngles, elevationDeg, false)
}

// LoadXML replaces the pattern from an XML document of the shape
//
//	<antenna>
//	  <azimuth><point angle="0" gain="0"/>...</azimuth>
//	  <elevation><point deg="-10" db="-3"/>...</elevation>
//	</antenna>
//
// Element names only need to contain "azimuth"/"elevation"; point
// attributes may use any accepted spelling (angle/deg, gain/db). MaxGain
// becomes the peak of the raw azimuth values and entries are then
// normalised to peak-relative. On any error the receiver is unchanged.
func (p *Pattern) LoadXML(r io.Reader) error {
	az := map[float64]float64{}
	el := map[float64]float64{}

	dec := xml.NewDecoder(r)
	var section string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parse antenna pattern: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			switch {
			case strings.Contains(name, "azimuth"):
				section = "azimuth"
			case strings.Contains(name, "elevation"):
				section = "elevation"
			default:
				if section == "" {
					continue
				}
				angle, gain, err := pointAttrs(t.Attr)
				if err != nil {
					return fmt.Errorf("antenna pattern %s point: %w", section, err)
				}
				if section == "azimuth" {
					az[math.Mod(math.Mod(angle, 360)+360, 360)] = gain
				} else {
					el[clip(angle, -90, 90)] = gain
				}
			}
		case xml.EndElement:
			name := strings.ToLower(t.Name.Local)
			if strings.Contains(name, "azimuth") || strings.Contains(name, "elevation") {
				section = ""
			}
		}
	}

	if len(az) == 0 && len(el) == 0 {
		return fmt.Errorf("antenna pattern contains no azimuth or elevation points")
	}

	// Peak of the raw azimuth values becomes the absolute gain; the
	// tables are shifted to peak-relative so Gain() can always add
	// MaxGain back.
	peak := 0.0
	if len(az) > 0 {
		first := true
		for _, g := range az {
			if first || g > peak {
				peak = g
				first = false
			}
		}
		for a, g := range az {
			az[a] = g - peak
		}
	}
	if len(az) == 0 {
		for a := 0; a < 360; a++ {
			az[float64(a)] = 0
		}
	}
	if len(el) == 0 {
		for a := -90; a <= 90; a++ {
			el[float64(a)] = 0
		}
	}

	p.replace(az, el, peak)
	return nil
}

func (p *Pattern) replace(az, el map[float64]float64, maxGain float64) {
	p.azimuth = az
	p.elevation = el
	p.maxGain = maxGain
	p.azAngles = sortedKeys(az)
	p.elAngles = sortedKeys(el)
}

// pointAttrs extracts (angle, gain) from a point element, trying each
// accepted attribute spelling in order.
func pointAttrs(attrs []xml.Attr) (angle, gain float64, err error) {
	angle, ok := lookupAttr(attrs, angleAttrNames)
	if !ok {
		return 0, 0, fmt.Errorf("no angle attribute (accepted: %s)", strings.Join(angleAttrNames, ", "))
	}
	gain, ok = lookupAttr(attrs, gainAttrNames)
	if !ok {
		return 0, 0, fmt.Errorf("no gain attribute (accepted: %s)", strings.Join(gainAttrNames, ", "))
	}
	return angle, gain, nil
}

func lookupAttr(attrs []xml.Attr, names []string) (float64, bool) {
	for _, want := range names {
		for _, a := range attrs {
			if strings.EqualFold(a.Name.Local, want) {
				v, err := strconv.ParseFloat(strings.TrimSpace(a.Value), 64)
				if err != nil {
					return 0, false
				}
				return v, true
			}
		}
	}
	return 0, false
}

func sortedKeys(m map[float64]float64) []float64 {
	keys := make([]float64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	return keys
}

// interpolateAngular linearly interpolates a pattern table at the given
// angle. Azimuth queries are normalised mod 360 and the bracket may wrap
// across the 0/360 seam; elevation queries are clamped to [-90,90]. An
// exact hit returns the stored value; a degenerate single-sided bracket
// returns that bracket's value.
func interpolateAngular(table map[float64]float64, angles []float64, angle float64, wrap bool) float64 {
	if len(angles) == 0 {
		return 0
	}
	if wrap {
		angle = math.Mod(math.Mod(angle, 360)+360, 360)
	} else {
		angle = clip(angle, -90, 90)
	}
	if g, ok := table[angle]; ok {
		return g
	}

	// Nearest stored angle at or below the query, and nearest above.
	i := sort.SearchFloat64s(angles, angle)

	if !wrap {
		// Clamped tables return their edge value outside the sampled
		// span; that is the degenerate single-bracket case.
		if i == 0 {
			return table[angles[0]]
		}
		if i == len(angles) {
			return table[angles[len(angles)-1]]
		}
		lower, upper := angles[i-1], angles[i]
		ratio := (angle - lower) / (upper - lower)
		return table[lower] + ratio*(table[upper]-table[lower])
	}

	// Wrapped tables: a query outside the sampled span brackets across
	// the 0/360 seam (e.g. lower 350, upper 10 for a query of 3).
	var lower, upper float64
	if i == 0 || i == len(angles) {
		lower = angles[len(angles)-1]
		upper = angles[0]
	} else {
		lower = angles[i-1]
		upper = angles[i]
	}
	if lower == upper {
		return table[lower]
	}
	lowerVal := table[lower]
	upperVal := table[upper]
	if upper <= lower {
		upper += 360
		if angle < lower {
			angle += 360
		}
	}
	ratio := (angle - lower) / (upper - lower)
	return lowerVal + ratio*(upperVal-lowerVal)
}
