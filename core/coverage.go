package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/coverage-engine/internal/logging"
	"github.com/signalsfoundry/coverage-engine/model"
)

// ErrPipelineFailure wraps a panic recovered inside Compute. Callers get
// this instead of a partial grid.
var ErrPipelineFailure = errors.New("coverage pipeline failure")

// DefaultRxHeightM is assumed when a request leaves the receiver height
// unset; the conventional mobile handset height.
const DefaultRxHeightM = 1.5

// kmPerDegreeLat is the equirectangular degree-to-kilometre factor used
// when projecting radials onto lat/lon. Longitude is additionally scaled
// by cos(latitude).
const kmPerDegreeLat = 111.0

// progressReportInterval is how many radials pass between progress
// callbacks during the terrain stage.
const progressReportInterval = 120

// ElevationProvider resolves ground elevations in metres for batches of
// coordinates. Implementations must return one value per input point and
// should report 0 for points they cannot resolve rather than failing the
// whole batch; a returned error downgrades the radial to flat terrain.
type ElevationProvider interface {
	LookupBatch(ctx context.Context, points []model.Point) ([]float64, error)
}

// MetricsRecorder receives one observation per finished coverage run.
// The engine never blocks on it.
type MetricsRecorder interface {
	ObserveCoverageRun(quality model.Quality, terrain bool, duration time.Duration, err error)
}

// ProgressFunc receives advisory completion fractions in [0,1] during the
// terrain stage. It runs on the computing goroutine; a panicking callback
// is contained and disables further reporting for the run.
type ProgressFunc func(fraction float64)

// Engine computes coverage grids. It holds only injected collaborators
// and carries no state between Compute calls, so a single Engine is safe
// for concurrent requests.
type Engine struct {
	pattern   *Pattern
	elevation ElevationProvider
	lossModel PathLossModel
	log       logging.Logger
	metrics   MetricsRecorder
	progress  ProgressFunc
	tracer    trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithPattern sets the antenna pattern. Defaults to an omni pattern.
func WithPattern(p *Pattern) Option {
	return func(e *Engine) {
		if p != nil {
			e.pattern = p
		}
	}
}

// WithElevationProvider sets the terrain source. Without one, requests
// that ask for terrain are computed flat.
func WithElevationProvider(p ElevationProvider) Option {
	return func(e *Engine) { e.elevation = p }
}

// WithPathLossModel overrides the per-request model selection. Intended
// for tests and callers embedding a custom strategy.
func WithPathLossModel(m PathLossModel) Option {
	return func(e *Engine) { e.lossModel = m }
}

// WithLogger sets the structured logger. Defaults to Noop.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsRecorder sets the per-run metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithProgress registers an advisory progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// NewEngine constructs an Engine with the given options applied.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		pattern: NewOmniPattern(),
		log:     logging.Noop(),
		tracer:  otel.Tracer("coverage-engine/core"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute runs the full coverage pipeline for one request. A recovered
// panic anywhere in the pipeline is logged and surfaced as an
// ErrPipelineFailure; the result is then nil, never partially filled.
func (e *Engine) Compute(ctx context.Context, req model.CoverageRequest) (result *model.CoverageResult, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error(ctx, "coverage pipeline panic", logging.Any("panic", r))
			result = nil
			err = fmt.Errorf("%w: %v", ErrPipelineFailure, r)
		}
		if e.metrics != nil {
			e.metrics.ObserveCoverageRun(req.Quality, req.UseTerrain, time.Since(start), err)
		}
	}()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.RxHeightM <= 0 {
		req.RxHeightM = DefaultRxHeightM
	}

	ctx, span := e.tracer.Start(ctx, "engine.Compute", trace.WithAttributes(
		attribute.Float64("coverage.radius_km", req.RadiusKm),
		attribute.Float64("coverage.frequency_mhz", req.Transmitter.FrequencyMHz),
		attribute.String("coverage.quality", string(req.Quality)),
		attribute.Bool("coverage.terrain", req.UseTerrain),
	))
	defer span.End()

	plan := ResolveSampling(req)
	eirp := ErpToEirp(req.Transmitter.EffectiveERPdBm(), e.pattern.MaxGain())

	e.log.Info(ctx, "coverage run started",
		logging.Float64("radius_km", req.RadiusKm),
		logging.Float64("frequency_mhz", req.Transmitter.FrequencyMHz),
		logging.Int("grid_resolution", plan.GridResolution),
		logging.Int("distance_samples", plan.DistanceSamples),
		logging.Int("azimuth_samples", plan.AzimuthSamples))

	grid := newGrid(req.RadiusKm, plan.GridResolution)

	var terrainLoss [][]float64
	if req.UseTerrain && e.elevation != nil {
		tl, terr := e.terrainLoss(ctx, req, plan, grid)
		if terr != nil {
			return nil, terr
		}
		terrainLoss = tl
	}

	result = e.assemble(ctx, req, grid, terrainLoss, eirp)

	e.log.Info(ctx, "coverage run finished",
		logging.Float64("duration_s", time.Since(start).Seconds()),
		logging.Int("points_above_floor", result.Stats.PointsAboveFloor),
		logging.Int("total_points", result.Stats.TotalPoints))
	return result, nil
}

func validateRequest(req model.CoverageRequest) error {
	if req.RadiusKm <= 0 {
		return fmt.Errorf("coverage request: radius must be positive, got %g km", req.RadiusKm)
	}
	if req.Transmitter.FrequencyMHz <= 0 {
		return fmt.Errorf("coverage request: frequency must be positive, got %g MHz", req.Transmitter.FrequencyMHz)
	}
	if lat := req.Transmitter.LatDeg; lat < -90 || lat > 90 {
		return fmt.Errorf("coverage request: latitude %g out of range", lat)
	}
	if lon := req.Transmitter.LonDeg; lon < -180 || lon > 180 {
		return fmt.Errorf("coverage request: longitude %g out of range", lon)
	}
	return nil
}

// terrainLoss computes diffraction losses on the polar sampling lattice
// and interpolates them onto the Cartesian grid. Elevation failures are
// logged and the affected radial stays flat; terrain data being
// unavailable must degrade the prediction, never abort it.
func (e *Engine) terrainLoss(ctx context.Context, req model.CoverageRequest, plan SamplingPlan, grid *Grid) ([][]float64, error) {
	ctx, span := e.tracer.Start(ctx, "engine.terrainLoss")
	defer span.End()

	tx := req.Transmitter
	latRad := tx.LatDeg * math.Pi / 180
	lonScale := kmPerDegreeLat * math.Cos(latRad)
	if math.Abs(lonScale) < 1e-9 {
		lonScale = 1e-9 // polar transmitter; radials collapse but never divide by zero
	}

	distKm := make([]float64, plan.DistanceSamples)
	for i := range distKm {
		distKm[i] = req.RadiusKm * float64(i+1) / float64(plan.DistanceSamples)
	}
	lattice := newPolarSamples(distKm, plan.AzimuthSamples)

	points := make([]model.Point, len(distKm))
	report := e.progressReporter(ctx)
	failedRadials := 0

	for a := 0; a < plan.AzimuthSamples; a++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("terrain stage cancelled: %w", err)
		}

		azRad := float64(a) * lattice.stepDeg * math.Pi / 180
		sinAz, cosAz := math.Sin(azRad), math.Cos(azRad)
		for i, d := range distKm {
			points[i] = model.Point{
				LatDeg: tx.LatDeg + d*cosAz/kmPerDegreeLat,
				LonDeg: tx.LonDeg + d*sinAz/lonScale,
			}
		}

		elev, err := e.elevation.LookupBatch(ctx, points)
		if err != nil || len(elev) != len(points) {
			if failedRadials == 0 {
				e.log.Warn(ctx, "elevation lookup failed, radial treated as flat",
					logging.Int("azimuth_index", a), logging.Any("error", err))
			}
			failedRadials++
			continue // lattice row stays zero
		}

		profDist, profElev := resampleProfile(distKm, elev)
		for i, rxDist := range distKm {
			lattice.loss[a][i] = TerrainDiffractionLoss(
				tx.HeightM, req.RxHeightM, profElev, tx.FrequencyMHz, profDist, rxDist)
		}

		if report != nil && a%progressReportInterval == 0 {
			if !report(float64(a) / float64(plan.AzimuthSamples)) {
				report = nil
			}
		}
	}

	if failedRadials > 0 {
		e.log.Warn(ctx, "terrain stage degraded",
			logging.Int("failed_radials", failedRadials),
			logging.Int("total_radials", plan.AzimuthSamples))
	}
	if report != nil {
		report(1)
	}
	return lattice.toGrid(grid), nil
}

// progressReporter wraps the configured ProgressFunc so a panicking
// callback cannot take the pipeline down; it reports whether reporting
// should continue.
func (e *Engine) progressReporter(ctx context.Context) func(float64) bool {
	if e.progress == nil {
		return nil
	}
	return func(fraction float64) (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				e.log.Warn(ctx, "progress callback panicked, reporting disabled",
					logging.Any("panic", r))
				ok = false
			}
		}()
		e.progress(fraction)
		return true
	}
}

// assemble folds gain, base path loss and terrain loss into the final
// grids and computes the statistics.
func (e *Engine) assemble(ctx context.Context, req model.CoverageRequest, grid *Grid, terrainLoss [][]float64, eirp float64) *model.CoverageResult {
	_, span := e.tracer.Start(ctx, "engine.assemble")
	defer span.End()

	tx := req.Transmitter
	lossModel := e.lossModel
	if lossModel == nil {
		lossModel = PathLossModelFor(req.Model)
	}

	res := &model.CoverageResult{
		XKm:        grid.XKm,
		YKm:        grid.YKm,
		RxPowerDBm: make2D(grid.N),
		Masked:     grid.Masked,
		EIRPdBm:    eirp,
	}
	if terrainLoss != nil {
		res.TerrainLossDB = terrainLoss
	}

	erpEff := tx.EffectiveERPdBm()
	powers := make([]float64, 0, grid.InsideCount)
	var terrainVals []float64
	if terrainLoss != nil {
		terrainVals = make([]float64, 0, grid.InsideCount)
	}

	for row := 0; row < grid.N; row++ {
		for col := 0; col < grid.N; col++ {
			if grid.Masked[row][col] {
				res.RxPowerDBm[row][col] = model.MaskedPowerDBm
				continue
			}
			d := grid.DistKm[row][col]

			elevAngle := 0.0
			if d > 0 {
				elevAngle = math.Atan2(req.RxHeightM-tx.HeightM, d*1000) * 180 / math.Pi
			}
			gain := e.pattern.Gain(grid.AzimuthDeg[row][col]-tx.BearingDeg, elevAngle+tx.DowntiltDeg)

			loss := lossModel.LossDB(d, tx.FrequencyMHz, tx.HeightM, req.RxHeightM)
			if fspl := FreeSpaceLoss(d, tx.FrequencyMHz); loss < fspl {
				loss = fspl
			}
			if terrainLoss != nil {
				loss += terrainLoss[row][col]
				terrainVals = append(terrainVals, terrainLoss[row][col])
			}

			power := ErpToEirp(erpEff, gain) - loss
			if math.IsNaN(power) || math.IsInf(power, 0) {
				power = model.SanitizedPowerDBm
			}
			res.RxPowerDBm[row][col] = power
			powers = append(powers, power)
		}
	}

	res.Stats = coverageStats(powers, terrainVals, req.SignalFloorDBm)
	return res
}

func coverageStats(powers, terrainVals []float64, floorDBm float64) model.CoverageStats {
	stats := model.CoverageStats{TotalPoints: len(powers)}
	if len(powers) == 0 {
		return stats
	}

	stats.MinPowerDBm = powers[0]
	stats.MaxPowerDBm = powers[0]
	for _, p := range powers {
		if p < stats.MinPowerDBm {
			stats.MinPowerDBm = p
		}
		if p > stats.MaxPowerDBm {
			stats.MaxPowerDBm = p
		}
		if p >= floorDBm {
			stats.PointsAboveFloor++
		}
	}
	stats.MeanPowerDBm = stat.Mean(powers, nil)

	if len(terrainVals) > 0 {
		minT, maxT := terrainVals[0], terrainVals[0]
		for _, v := range terrainVals {
			if v < minT {
				minT = v
			}
			if v > maxT {
				maxT = v
			}
		}
		meanT := stat.Mean(terrainVals, nil)
		stats.MinTerrainLossDB = &minT
		stats.MaxTerrainLossDB = &maxT
		stats.MeanTerrainLossDB = &meanT
	}
	return stats
}
