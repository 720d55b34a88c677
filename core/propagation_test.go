package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/coverage-engine/model"
)

func TestFreeSpaceLossFormula(t *testing.T) {
	got := FreeSpaceLoss(1, 900)
	want := 32.45 + 20*math.Log10(900)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("FreeSpaceLoss(1, 900) = %v, want %v", got, want)
	}
}

func TestFreeSpaceLossDegenerateInputs(t *testing.T) {
	for _, tc := range []struct{ d, f float64 }{
		{0, 900},
		{-1, 900},
		{10, 0},
		{10, -5},
	} {
		if got := FreeSpaceLoss(tc.d, tc.f); got != 0 {
			t.Fatalf("FreeSpaceLoss(%v, %v) = %v, want 0", tc.d, tc.f, got)
		}
	}
}

func TestFreeSpaceLossMonotonic(t *testing.T) {
	prev := FreeSpaceLoss(0.5, 900)
	for d := 1.0; d <= 50; d += 0.5 {
		cur := FreeSpaceLoss(d, 900)
		if cur <= prev {
			t.Fatalf("loss not increasing with distance at %v km: %v <= %v", d, cur, prev)
		}
		prev = cur
	}

	prev = FreeSpaceLoss(10, 100)
	for f := 200.0; f <= 6000; f += 100 {
		cur := FreeSpaceLoss(10, f)
		if cur <= prev {
			t.Fatalf("loss not increasing with frequency at %v MHz: %v <= %v", f, cur, prev)
		}
		prev = cur
	}
}

func TestFreeSpaceLossDoubleFrequency(t *testing.T) {
	diff := FreeSpaceLoss(10, 1800) - FreeSpaceLoss(10, 900)
	want := 20 * math.Log10(2)
	if math.Abs(diff-want) > 1e-9 {
		t.Fatalf("doubling frequency added %v dB, want %v", diff, want)
	}
}

func TestErpToEirp(t *testing.T) {
	// ERP is dipole-referenced: with a 0 dBi antenna the isotropic
	// equivalent is 2.15 dB above the ERP.
	if got := ErpToEirp(40, 0); got != 42.15 {
		t.Fatalf("ErpToEirp(40, 0) = %v, want 42.15", got)
	}
	if got := ErpToEirp(40, 3); got != 45.15 {
		t.Fatalf("ErpToEirp(40, 3) = %v, want 45.15", got)
	}
}

func TestPathLossModelSelection(t *testing.T) {
	if got := PathLossModelFor(model.ModelGroundReflection).Name(); got != model.ModelGroundReflection {
		t.Fatalf("selector returned %q for ground reflection", got)
	}
	if got := PathLossModelFor("").Name(); got != model.ModelFreeSpace {
		t.Fatalf("selector returned %q for empty ID, want free space", got)
	}
	if got := PathLossModelFor("no-such-model").Name(); got != model.ModelFreeSpace {
		t.Fatalf("selector returned %q for unknown ID, want free space", got)
	}
}

func TestGroundReflectionInsideBreakDistanceIsFSPL(t *testing.T) {
	// At 100 m with 30 m / 1.5 m antennas the break distance is well
	// beyond the path, so the model must degenerate to free space.
	m := GroundReflectionModel{}
	got := m.LossDB(0.1, 900, 30, 1.5)
	want := FreeSpaceLoss(0.1, 900)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("two-ray loss inside break distance = %v, want FSPL %v", got, want)
	}
}

func TestGroundReflectionFarFieldGrowsFasterThanFSPL(t *testing.T) {
	m := GroundReflectionModel{}
	near := m.LossDB(5, 900, 30, 1.5)
	far := m.LossDB(20, 900, 30, 1.5)
	// 4x the distance adds 40 log10(4) ~ 24 dB in the two-ray regime,
	// versus 12 dB for free space.
	gain := far - near
	if gain < 20 {
		t.Fatalf("two-ray far-field slope too shallow: +%v dB over 5 -> 20 km", gain)
	}
}
