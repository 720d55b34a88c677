// Package server is the HTTP surface of the coverage engine: coverage
// computation, elevation lookups, and cache management, served with gin.
package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/coverage-engine/elevation"
	"github.com/signalsfoundry/coverage-engine/internal/logging"
	"github.com/signalsfoundry/coverage-engine/internal/observability"
	"github.com/signalsfoundry/coverage-engine/model"
)

// requestIDHeader carries the request ID in both directions.
const requestIDHeader = "X-Request-Id"

// CoverageComputer is the engine as the server sees it.
type CoverageComputer interface {
	Compute(ctx context.Context, req model.CoverageRequest) (*model.CoverageResult, error)
}

// Server wires the engine, the elevation store, and the metrics
// collector behind the HTTP API.
type Server struct {
	engine    CoverageComputer
	store     *elevation.Store
	collector *observability.CoverageCollector
	log       logging.Logger
}

// New constructs a Server. store and collector may be nil; the related
// endpoints then answer 503 or skip gauge updates.
func New(engine CoverageComputer, store *elevation.Store, collector *observability.CoverageCollector, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{engine: engine, store: store, collector: collector, log: log}
}

// Router builds the gin engine with middleware and all routes attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestID())
	if s.collector != nil {
		router.Use(s.collector.GinMiddleware())
	}

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api/v1")
	api.POST("/coverage", s.handleCoverage)
	api.GET("/elevation", s.handleElevation)
	api.POST("/elevation/batch", s.handleElevationBatch)
	api.GET("/cache/export", s.handleCacheExport)
	api.POST("/cache/import", s.handleCacheImport)
	api.GET("/cache/stats", s.handleCacheStats)
	api.POST("/probe", s.handleProbe)
	api.POST("/precache", s.handlePrecache)

	return router
}

// requestID attaches a request-scoped logger and echoes the request ID
// back to the caller, honouring an inbound X-Request-Id.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(requestIDHeader); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, id := logging.EnsureRequestID(ctx)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCoverage(c *gin.Context) {
	var req model.CoverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, log := logging.WithRequestLogger(c.Request.Context(), s.log)
	result, err := s.engine.Compute(ctx, req)
	if err != nil {
		log.Error(ctx, "coverage computation failed", logging.Err(err))
		status := http.StatusUnprocessableEntity
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.updateStorageGauges()
	c.JSON(http.StatusOK, result)
}

// handleProbe computes coverage for the embedded request and samples the
// resulting grid at a single geographic point.
func (s *Server) handleProbe(c *gin.Context) {
	var body struct {
		Request model.CoverageRequest `json:"Request"`
		LatDeg  float64               `json:"LatDeg"`
		LonDeg  float64               `json:"LonDeg"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, log := logging.WithRequestLogger(c.Request.Context(), s.log)
	result, err := s.engine.Compute(ctx, body.Request)
	if err != nil {
		log.Error(ctx, "probe computation failed", logging.Err(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	tx := body.Request.Transmitter
	xKm := (body.LonDeg - tx.LonDeg) * 111.0 * math.Cos(tx.LatDeg*math.Pi/180)
	yKm := (body.LatDeg - tx.LatDeg) * 111.0
	power, ok := result.SampleAt(xKm, yKm)
	resp := gin.H{"in_coverage": ok}
	if ok {
		resp["power_dbm"] = power
		resp["above_floor"] = power >= body.Request.SignalFloorDBm
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleElevation(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no elevation store configured"})
		return
	}
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lon, err2 := strconv.ParseFloat(c.Query("lon"), 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon query parameters are required"})
		return
	}

	elevations, err := s.store.LookupBatch(c.Request.Context(), []model.Point{{LatDeg: lat, LonDeg: lon}})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"elevation": elevations[0]})
}

func (s *Server) handleElevationBatch(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no elevation store configured"})
		return
	}
	var points []model.Point
	if err := c.ShouldBindJSON(&points); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(points) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty point list"})
		return
	}

	elevations, err := s.store.LookupBatch(c.Request.Context(), points)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"elevations": elevations})
}

func (s *Server) handleCacheExport(c *gin.Context) {
	cache := s.cache()
	if cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no elevation cache configured"})
		return
	}
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lon, err2 := strconv.ParseFloat(c.Query("lon"), 64)
	radius, err3 := strconv.ParseFloat(c.Query("radius_km"), 64)
	if err1 != nil || err2 != nil || err3 != nil || radius <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat, lon and positive radius_km are required"})
		return
	}

	entries := cache.ExportCircle(model.Point{LatDeg: lat, LonDeg: lon}, radius)
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) handleCacheImport(c *gin.Context) {
	cache := s.cache()
	if cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no elevation cache configured"})
		return
	}
	var body struct {
		Entries map[string]float64 `json:"entries"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := cache.Import(body.Entries); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.updateStorageGauges()
	c.JSON(http.StatusOK, gin.H{"imported": len(body.Entries), "total": cache.Len()})
}

func (s *Server) handleCacheStats(c *gin.Context) {
	cache := s.cache()
	if cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no elevation cache configured"})
		return
	}
	stats := gin.H{"entries": cache.Len()}
	if tiles := s.store.Tiles(); tiles != nil {
		stats["tiles_loaded"] = tiles.CachedTiles()
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handlePrecache(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no elevation store configured"})
		return
	}
	var body struct {
		LatDeg    float64 `json:"LatDeg"`
		LonDeg    float64 `json:"LonDeg"`
		RadiusKm  float64 `json:"RadiusKm"`
		SpacingKm float64 `json:"SpacingKm"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.RadiusKm <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "RadiusKm must be positive"})
		return
	}

	ctx, log := logging.WithRequestLogger(c.Request.Context(), s.log)
	resolved, err := s.store.Precache(ctx, model.Point{LatDeg: body.LatDeg, LonDeg: body.LonDeg}, body.RadiusKm, body.SpacingKm)
	if err != nil {
		log.Warn(ctx, "precache aborted", logging.Err(err), logging.Int("resolved", resolved))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "resolved": resolved})
		return
	}
	s.updateStorageGauges()
	c.JSON(http.StatusOK, gin.H{"resolved": resolved})
}

func (s *Server) cache() *elevation.PointCache {
	if s.store == nil {
		return nil
	}
	return s.store.Cache()
}

func (s *Server) updateStorageGauges() {
	if s.collector == nil || s.store == nil {
		return
	}
	entries, tiles := 0, 0
	if c := s.store.Cache(); c != nil {
		entries = c.Len()
	}
	if t := s.store.Tiles(); t != nil {
		tiles = t.CachedTiles()
	}
	s.collector.SetStorageCounts(entries, tiles)
}
