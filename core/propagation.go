package core

import (
	"math"

	"github.com/signalsfoundry/coverage-engine/model"
)

// speedOfLight in metres per second, used to derive wavelengths.
const speedOfLight = 299792458.0

// FreeSpaceLoss returns the free-space path loss in dB for a distance in
// kilometres and a frequency in MHz:
//
//	FSPL = 32.45 + 20 log10(d_km) + 20 log10(f_MHz)
//
// Non-positive distances return 0 so the transmitter cell never produces
// -Inf in the grids.
func FreeSpaceLoss(distanceKm, frequencyMHz float64) float64 {
	if distanceKm <= 0 || frequencyMHz <= 0 {
		return 0
	}
	return 32.45 + 20*math.Log10(distanceKm) + 20*math.Log10(frequencyMHz)
}

// DipoleToIsotropicDB is the gain of a half-wave dipole over an isotropic
// radiator. ERP is referenced to a dipole, EIRP to an isotropic source.
const DipoleToIsotropicDB = 2.15

// ErpToEirp converts effective radiated power to effective isotropic
// radiated power: the dipole reference offset plus the antenna gain in dBi.
func ErpToEirp(erpDBm, antennaGainDBi float64) float64 {
	return erpDBm + DipoleToIsotropicDB + antennaGainDBi
}

// WavelengthM returns the wavelength in metres for a frequency in MHz.
// Non-positive frequencies are reported as 0 and must be guarded by the
// caller.
func WavelengthM(frequencyMHz float64) float64 {
	if frequencyMHz <= 0 {
		return 0
	}
	return speedOfLight / (frequencyMHz * 1e6)
}

// PathLossModel is a pluggable distance-loss strategy. Implementations
// return the base (non-terrain) path loss in dB for a single cell. The
// engine floor-clamps whatever a model returns to at least the free-space
// loss: ground or terrain effects may only ever add loss.
type PathLossModel interface {
	Name() model.PathLossModelID
	LossDB(distanceKm, frequencyMHz, txHeightM, rxHeightM float64) float64
}

// FreeSpaceModel is plain FSPL.
type FreeSpaceModel struct{}

func (FreeSpaceModel) Name() model.PathLossModelID { return model.ModelFreeSpace }

func (FreeSpaceModel) LossDB(distanceKm, frequencyMHz, _, _ float64) float64 {
	return FreeSpaceLoss(distanceKm, frequencyMHz)
}

// GroundReflectionModel is a deliberately simplified two-ray
// approximation: beyond the break distance 4*pi*ht*hr/lambda the loss
// grows with 40 log10(d) and loses the frequency term; inside it the
// model degenerates to FSPL. It is a placeholder strategy, not a
// certified standard, and is only reachable through the PathLossModel
// selector.
type GroundReflectionModel struct{}

func (GroundReflectionModel) Name() model.PathLossModelID { return model.ModelGroundReflection }

func (GroundReflectionModel) LossDB(distanceKm, frequencyMHz, txHeightM, rxHeightM float64) float64 {
	if distanceKm <= 0 || frequencyMHz <= 0 {
		return 0
	}
	if txHeightM <= 0 {
		txHeightM = 1
	}
	if rxHeightM <= 0 {
		rxHeightM = 1
	}
	lambda := WavelengthM(frequencyMHz)
	distanceM := distanceKm * 1e3
	breakM := 4 * math.Pi * txHeightM * rxHeightM / lambda
	if distanceM <= breakM {
		return FreeSpaceLoss(distanceKm, frequencyMHz)
	}
	return 40*math.Log10(distanceM) - 20*math.Log10(txHeightM) - 20*math.Log10(rxHeightM)
}

// PathLossModelFor maps a request's model selector onto a strategy,
// defaulting to free space for unknown or empty IDs.
func PathLossModelFor(id model.PathLossModelID) PathLossModel {
	switch id {
	case model.ModelGroundReflection:
		return GroundReflectionModel{}
	default:
		return FreeSpaceModel{}
	}
}
