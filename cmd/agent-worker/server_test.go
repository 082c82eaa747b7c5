package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textagents/internal/common/metrics"
)

type stubBroker struct{ err error }

func (s stubBroker) HealthCheck(context.Context) error { return s.err }

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := get(t, newServeMux(stubBroker{}, nil), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestReady(t *testing.T) {
	rec, body := get(t, newServeMux(stubBroker{}, nil), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])

	rec, body = get(t, newServeMux(stubBroker{err: fmt.Errorf("zeebe health check failed: unavailable")}, nil), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["status"])
	assert.Contains(t, body["error"], "unavailable")
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.AgentRuns.WithLabelValues("sentiment", metrics.StatusSuccess).Inc()

	rec, _ := get(t, newServeMux(stubBroker{}, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `textagents_runs_total{agent="sentiment",status="success"}`)
}
