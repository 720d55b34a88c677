package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/coverage-engine/model"
)

// CoverageCollector bundles Prometheus metrics for the coverage service:
// the HTTP surface, the engine pipeline, and the elevation fallback
// chain. It satisfies the engine's MetricsRecorder and the elevation
// store's LookupMetrics.
type CoverageCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	CoverageRuns     *prometheus.CounterVec
	CoverageDuration *prometheus.HistogramVec

	ElevationLookups *prometheus.CounterVec
	CacheEntries     prometheus.Gauge
	TilesLoaded      prometheus.Gauge
}

// NewCoverageCollector registers the coverage metrics against the
// provided registerer, defaulting to the global Prometheus registry when
// nil. Re-registering identical collectors is tolerated so tests and
// restarts never trip on AlreadyRegisteredError.
func NewCoverageCollector(reg prometheus.Registerer) (*CoverageCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coverage_http_requests_total",
		Help: "Total handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"}), "coverage_http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coverage_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"route", "method"}), "coverage_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coverage_runs_total",
		Help: "Completed coverage computations, labeled by quality preset, terrain use, and outcome.",
	}, []string{"quality", "terrain", "outcome"}), "coverage_runs_total")
	if err != nil {
		return nil, err
	}

	runDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coverage_run_duration_seconds",
		Help:    "Coverage pipeline duration in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"quality", "terrain"}), "coverage_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_lookups_total",
		Help: "Elevation point lookups, labeled by the source that resolved them.",
	}, []string{"source"}), "elevation_lookups_total")
	if err != nil {
		return nil, err
	}

	cacheEntries, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "elevation_cache_entries",
		Help: "Current number of entries in the elevation point cache.",
	}), "elevation_cache_entries")
	if err != nil {
		return nil, err
	}

	tilesLoaded, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "elevation_tiles_loaded",
		Help: "Parsed HGT tiles currently held in memory.",
	}), "elevation_tiles_loaded")
	if err != nil {
		return nil, err
	}

	return &CoverageCollector{
		gatherer:         gatherer,
		HTTPRequests:     httpRequests,
		HTTPDurations:    httpDurations,
		CoverageRuns:     runs,
		CoverageDuration: runDuration,
		ElevationLookups: lookups,
		CacheEntries:     cacheEntries,
		TilesLoaded:      tilesLoaded,
	}, nil
}

// GinMiddleware records request counts and durations per route.
func (c *CoverageCollector) GinMiddleware() gin.HandlerFunc {
	return func(g *gin.Context) {
		start := time.Now()
		g.Next()

		if c == nil {
			return
		}
		route := g.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := g.Request.Method
		code := strconv.Itoa(g.Writer.Status())

		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(route, method, code).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
		}
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *CoverageCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveCoverageRun satisfies the engine's MetricsRecorder.
func (c *CoverageCollector) ObserveCoverageRun(quality model.Quality, terrain bool, duration time.Duration, err error) {
	if c == nil {
		return
	}
	q := string(quality)
	if q == "" {
		q = string(model.QualityMedium)
	}
	t := strconv.FormatBool(terrain)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	if c.CoverageRuns != nil {
		c.CoverageRuns.WithLabelValues(q, t, outcome).Inc()
	}
	if c.CoverageDuration != nil {
		c.CoverageDuration.WithLabelValues(q, t).Observe(duration.Seconds())
	}
}

// ObserveElevationLookups satisfies the elevation store's LookupMetrics.
func (c *CoverageCollector) ObserveElevationLookups(cacheHits, tileHits, remoteHits, unresolved int) {
	if c == nil || c.ElevationLookups == nil {
		return
	}
	if cacheHits > 0 {
		c.ElevationLookups.WithLabelValues("cache").Add(float64(cacheHits))
	}
	if tileHits > 0 {
		c.ElevationLookups.WithLabelValues("tile").Add(float64(tileHits))
	}
	if remoteHits > 0 {
		c.ElevationLookups.WithLabelValues("remote").Add(float64(remoteHits))
	}
	if unresolved > 0 {
		c.ElevationLookups.WithLabelValues("unresolved").Add(float64(unresolved))
	}
}

// SetStorageCounts updates the cache and tile gauges; the server calls
// this after cache-mutating operations.
func (c *CoverageCollector) SetStorageCounts(cacheEntries, tilesLoaded int) {
	if c == nil {
		return
	}
	if c.CacheEntries != nil {
		c.CacheEntries.Set(float64(cacheEntries))
	}
	if c.TilesLoaded != nil {
		c.TilesLoaded.Set(float64(tilesLoaded))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
