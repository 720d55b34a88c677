package model

// Quality selects the adaptive sampling preset for a coverage run.
type Quality string

const (
	QualityLow    Quality = "Low"
	QualityMedium Quality = "Medium"
	QualityHigh   Quality = "High"
	QualityUltra  Quality = "Ultra"
	// QualityCustom bypasses the preset table; the request must carry
	// explicit grid/distance sample counts.
	QualityCustom Quality = "Custom"
)

// PathLossModelID names a pluggable path-loss strategy.
type PathLossModelID string

const (
	ModelFreeSpace        PathLossModelID = "fspl"
	ModelGroundReflection PathLossModelID = "ground-reflection"
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	LatDeg float64 `json:"LatDeg"`
	LonDeg float64 `json:"LonDeg"`
}

// Transmitter describes the radiating station for a coverage run.
type Transmitter struct {
	LatDeg float64 `json:"LatDeg"`
	LonDeg float64 `json:"LonDeg"`

	// HeightM is the antenna height above ground level in metres.
	HeightM float64 `json:"HeightM"`

	ERPdBm       float64 `json:"ERPdBm"`
	FrequencyMHz float64 `json:"FrequencyMHz"`

	// BearingDeg rotates the azimuth pattern, degrees clockwise from
	// true north. DowntiltDeg is positive downward.
	BearingDeg  float64 `json:"BearingDeg,omitempty"`
	DowntiltDeg float64 `json:"DowntiltDeg,omitempty"`

	// Optional station RF chain adjustments applied on top of ERPdBm.
	// EffectiveERP = ERPdBm + SystemGainDB - SystemLossDB.
	SystemGainDB float64 `json:"SystemGainDB,omitempty"`
	SystemLossDB float64 `json:"SystemLossDB,omitempty"`
}

// EffectiveERPdBm folds the station RF chain into the configured ERP.
func (t Transmitter) EffectiveERPdBm() float64 {
	return t.ERPdBm + t.SystemGainDB - t.SystemLossDB
}

// CoverageRequest are the caller-supplied parameters of one coverage
// computation. A request is consumed by a single Engine.Compute call and
// carries no state of its own.
type CoverageRequest struct {
	Transmitter Transmitter `json:"Transmitter"`

	RadiusKm       float64 `json:"RadiusKm"`
	SignalFloorDBm float64 `json:"SignalFloorDBm"`

	// RxHeightM is the receiver height above ground (metres). Zero means
	// the conventional mobile-receiver default of 1.5 m.
	RxHeightM float64 `json:"RxHeightM,omitempty"`

	UseTerrain bool            `json:"UseTerrain,omitempty"`
	Quality    Quality         `json:"Quality,omitempty"`
	Model      PathLossModelID `json:"Model,omitempty"`

	// ZoomHint is the caller's current map zoom level; it only scales
	// sampling density and never affects correctness.
	ZoomHint int `json:"ZoomHint,omitempty"`

	// Custom sampling, honoured only when Quality == QualityCustom.
	CustomGridResolution  int `json:"CustomGridResolution,omitempty"`
	CustomDistanceSamples int `json:"CustomDistanceSamples,omitempty"`
}
