package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServicePlanGeneration(t *testing.T) {
	metrics := NewMetricsService()

	metrics.ObservePlanGeneration("parallel", "success", 120*time.Millisecond, 60)
	metrics.ObservePlanGeneration("parallel", "insufficient_time", 5*time.Millisecond, 0)
	metrics.ObservePlanGeneration("", "validation_error", time.Millisecond, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.planGenerations.WithLabelValues("parallel", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.planGenerations.WithLabelValues("parallel", "insufficient_time")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.planGenerations.WithLabelValues("unknown", "validation_error")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.planItems))
}

func TestMetricsServiceDateUpdatesAndCache(t *testing.T) {
	metrics := NewMetricsService()

	metrics.RecordDateUpdates(7, 1)
	metrics.RecordDateUpdates(2, 0)
	assert.Equal(t, 9.0, testutil.ToFloat64(metrics.dateRecalculations.WithLabelValues("updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.dateRecalculations.WithLabelValues("failed")))

	metrics.RecordCacheOperation(true, time.Millisecond)
	metrics.RecordCacheOperation(false, time.Millisecond)
	metrics.RecordCacheOperation(true, time.Millisecond)
	assert.InDelta(t, 2.0/3.0, testutil.ToFloat64(metrics.cacheHitRatio), 1e-9)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var metrics *MetricsService
	assert.NotPanics(t, func() {
		metrics.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
		metrics.RecordCacheOperation(true, time.Millisecond)
		metrics.ObserveCacheWrite(time.Millisecond)
		metrics.ObserveDBQuery("q", time.Millisecond)
		metrics.ObservePlanGeneration("parallel", "success", time.Millisecond, 1)
		metrics.RecordDateUpdates(1, 0)
	})
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	metrics := NewMetricsService()
	metrics.ObserveHTTPRequest("POST", "/api/v1/study-plans", 201, 10*time.Millisecond)
	metrics.ObservePlanGeneration("parallel", "success", time.Millisecond, 3)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="POST",path="/api/v1/study-plans",status="201"} 1`)
	assert.Contains(t, rec.Body.String(), `study_plan_generations_total{mode="parallel",outcome="success"} 1`)
}
