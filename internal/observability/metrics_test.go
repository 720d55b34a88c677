package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/signalsfoundry/coverage-engine/model"
)

func TestGinMiddlewareRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCoverageCollector(reg)
	if err != nil {
		t.Fatalf("NewCoverageCollector: %v", err)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(collector.GinMiddleware())
	router.GET("/api/v1/elevation", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"elevation": 1523.0})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/elevation?lat=43.5&lon=-112.0", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	count := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/api/v1/elevation", "GET", "200"))
	if count != 1 {
		t.Fatalf("http requests counter = %v, want 1", count)
	}

	obs, err := collector.HTTPDurations.GetMetricWithLabelValues("/api/v1/elevation", "GET")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	hist := &dto.Metric{}
	if err := obs.(prometheus.Histogram).Write(hist); err != nil {
		t.Fatalf("histogram write: %v", err)
	}
	if hist.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("duration sample count = %d, want 1", hist.GetHistogram().GetSampleCount())
	}
}

func TestObserveCoverageRunLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCoverageCollector(reg)
	if err != nil {
		t.Fatalf("NewCoverageCollector: %v", err)
	}

	collector.ObserveCoverageRun(model.QualityHigh, true, 2*time.Second, nil)
	collector.ObserveCoverageRun("", false, time.Second, assertErr{})

	ok := testutil.ToFloat64(collector.CoverageRuns.WithLabelValues("High", "true", "ok"))
	if ok != 1 {
		t.Fatalf("ok runs = %v, want 1", ok)
	}
	failed := testutil.ToFloat64(collector.CoverageRuns.WithLabelValues("Medium", "false", "error"))
	if failed != 1 {
		t.Fatalf("error runs with defaulted quality = %v, want 1", failed)
	}
}

func TestObserveElevationLookups(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCoverageCollector(reg)
	if err != nil {
		t.Fatalf("NewCoverageCollector: %v", err)
	}

	collector.ObserveElevationLookups(10, 4, 2, 1)
	collector.ObserveElevationLookups(5, 0, 0, 0)

	for _, tc := range []struct {
		source string
		want   float64
	}{
		{"cache", 15},
		{"tile", 4},
		{"remote", 2},
		{"unresolved", 1},
	} {
		got := testutil.ToFloat64(collector.ElevationLookups.WithLabelValues(tc.source))
		if got != tc.want {
			t.Fatalf("lookups[%s] = %v, want %v", tc.source, got, tc.want)
		}
	}
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCoverageCollector(reg)
	if err != nil {
		t.Fatalf("NewCoverageCollector: %v", err)
	}
	collector.SetStorageCounts(42, 3)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "elevation_cache_entries 42") {
		t.Fatalf("metrics output missing cache gauge:\n%s", body)
	}
	if !strings.Contains(body, "elevation_tiles_loaded 3") {
		t.Fatalf("metrics output missing tile gauge:\n%s", body)
	}
}

func TestDoubleRegistrationTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewCoverageCollector(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	second, err := NewCoverageCollector(reg)
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}
	if second == nil {
		t.Fatal("second collector is nil")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
