package core

import (
	"math"
	"strings"
	"testing"
)

const sectorPatternXML = `<antenna>
  <azimuth>
    <point angle="0" gain="16"/>
    <point angle="90" gain="-2"/>
    <point angle="180" gain="-14"/>
    <point angle="270" gain="-2"/>
  </azimuth>
  <elevation>
    <point deg="-10" db="-3"/>
    <point deg="0" db="0"/>
    <point deg="10" db="-3"/>
  </elevation>
</antenna>`

func TestOmniPatternIsUniform(t *testing.T) {
	p := NewOmniPattern()
	if p.MaxGain() != 0 {
		t.Fatalf("omni MaxGain = %v, want 0", p.MaxGain())
	}
	for az := 0.0; az < 360; az += 7.3 {
		for el := -90.0; el <= 90; el += 15 {
			if g := p.Gain(az, el); g != 0 {
				t.Fatalf("omni Gain(%v, %v) = %v, want 0", az, el, g)
			}
		}
	}
}

func TestLoadXMLNormalisesToPeak(t *testing.T) {
	p := NewOmniPattern()
	if err := p.LoadXML(strings.NewReader(sectorPatternXML)); err != nil {
		t.Fatalf("LoadXML: %v", err)
	}
	if p.MaxGain() != 16 {
		t.Fatalf("MaxGain = %v, want 16", p.MaxGain())
	}
	if g := p.Gain(0, 0); g != 16 {
		t.Fatalf("boresight gain = %v, want 16", g)
	}
	if g := p.Gain(180, 0); g != -14+16 {
		t.Fatalf("back-lobe gain = %v, want 2", g)
	}
	// Off-boresight elevation subtracts from the absolute gain.
	if g := p.Gain(0, -10); g != 13 {
		t.Fatalf("gain at -10 deg elevation = %v, want 13", g)
	}
}

func TestGainContinuousAcrossNorthSeam(t *testing.T) {
	p := NewOmniPattern()
	if err := p.LoadXML(strings.NewReader(sectorPatternXML)); err != nil {
		t.Fatalf("LoadXML: %v", err)
	}
	left := p.Gain(359.99, 0)
	right := p.Gain(0.01, 0)
	if math.Abs(left-right) > 0.01 {
		t.Fatalf("gain discontinuous at north: %v vs %v", left, right)
	}
	// Negative azimuths normalise onto the same table.
	if got, want := p.Gain(-90, 0), p.Gain(270, 0); got != want {
		t.Fatalf("Gain(-90) = %v, want Gain(270) = %v", got, want)
	}
}

func TestGainAzimuthInterpolation(t *testing.T) {
	p := NewOmniPattern()
	if err := p.LoadXML(strings.NewReader(sectorPatternXML)); err != nil {
		t.Fatalf("LoadXML: %v", err)
	}
	// Midway between 0 (rel 0) and 90 (rel -18): rel -9, abs 7.
	if g := p.Gain(45, 0); math.Abs(g-7) > 1e-9 {
		t.Fatalf("Gain(45, 0) = %v, want 7", g)
	}
}

func TestGainElevationClamped(t *testing.T) {
	p := NewOmniPattern()
	if err := p.LoadXML(strings.NewReader(sectorPatternXML)); err != nil {
		t.Fatalf("LoadXML: %v", err)
	}
	// Queries beyond the sampled elevation span hold the edge value.
	if got, want := p.Gain(0, -60), p.Gain(0, -10); got != want {
		t.Fatalf("Gain below sampled span = %v, want edge value %v", got, want)
	}
}

func TestLoadXMLAttributeSynonyms(t *testing.T) {
	// "deg"/"db" in the azimuth section too.
	doc := `<pattern>
	  <azimuthPattern>
	    <p deg="0" db="10"/>
	    <p deg="180" db="-5"/>
	  </azimuthPattern>
	</pattern>`
	p := NewOmniPattern()
	if err := p.LoadXML(strings.NewReader(doc)); err != nil {
		t.Fatalf("LoadXML: %v", err)
	}
	if p.MaxGain() != 10 {
		t.Fatalf("MaxGain = %v, want 10", p.MaxGain())
	}
	if g := p.Gain(180, 0); g != -5 {
		t.Fatalf("Gain(180) = %v, want -5", g)
	}
}

func TestLoadXMLFailureLeavesPatternUntouched(t *testing.T) {
	p := NewOmniPattern()
	if err := p.LoadXML(strings.NewReader(sectorPatternXML)); err != nil {
		t.Fatalf("initial LoadXML: %v", err)
	}
	before := p.Gain(45, 0)

	bad := `<antenna><azimuth><point angle="0"/></azimuth></antenna>`
	if err := p.LoadXML(strings.NewReader(bad)); err == nil {
		t.Fatal("LoadXML accepted a point without a gain attribute")
	}
	if after := p.Gain(45, 0); after != before {
		t.Fatalf("failed load changed the pattern: %v -> %v", before, after)
	}
	if p.MaxGain() != 16 {
		t.Fatalf("failed load changed MaxGain: %v", p.MaxGain())
	}
}

func TestLoadXMLEmptyDocumentRejected(t *testing.T) {
	p := NewOmniPattern()
	if err := p.LoadXML(strings.NewReader(`<antenna></antenna>`)); err == nil {
		t.Fatal("LoadXML accepted a pattern with no points")
	}
}
