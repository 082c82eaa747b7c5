// cmd/agent-worker/server.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"textagents/internal/common/camunda"
)

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func newServeMux(broker healthChecker, workers []*camunda.CamundaWorker) *http.ServeMux {
	taskTypes := make([]string, len(workers))
	for i, w := range workers {
		taskTypes[i] = w.TaskType()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := broker.HealthCheck(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unavailable",
				"error":  err.Error(),
				"time":   time.Now().Format(time.RFC3339),
			})
			return
		}
		writeStatus(w, http.StatusOK, map[string]interface{}{
			"status":  "ready",
			"workers": taskTypes,
			"time":    time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, code int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
