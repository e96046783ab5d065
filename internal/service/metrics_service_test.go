package service

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/timetable/generate", http.StatusOK, 20*time.Millisecond)
	m.ObserveGeneration(OutcomePartial, 2, 40*time.Millisecond)
	m.ObserveGeneration(OutcomeComplete, 0, 20*time.Millisecond)
	m.ObserveSubstitution(OutcomeAssigned)
	m.ObserveSubstitution(OutcomeNone)
	m.ObserveSubstitution(OutcomeConflict)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.Equal(t, uint64(2), snap.GenerationRuns)
	assert.InDelta(t, 30.0, snap.AverageGenerationMs, 0.001)
	assert.Equal(t, uint64(2), snap.UnscheduledUnits)
	assert.Equal(t, uint64(1), snap.Substitutions)
	assert.Equal(t, uint64(1), snap.SubstitutionMisses)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.0001)
	assert.Positive(t, snap.Goroutines)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveGeneration(OutcomeComplete, 0, time.Millisecond)
	m.ObserveSubstitution(OutcomeAssigned)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `timetable_generation_runs_total{outcome="complete"} 1`)
	assert.Contains(t, string(body), `timetable_substitutions_total{outcome="assigned"} 1`)
	assert.Contains(t, string(body), "timetable_generation_duration_seconds_bucket")
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveGeneration(OutcomeFailed, 1, time.Second)
	m.ObserveSubstitution(OutcomeNone)
	assert.Zero(t, m.Snapshot().GenerationRuns)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
