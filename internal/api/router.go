// Package api implements the minimal status/debug HTTP surface: a liveness
// probe for the process itself, the Prometheus scrape endpoint, a status
// endpoint exposing the Lifecycle Supervisor's summary, and an on-demand
// check trigger for a single model.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/monitor"
)

// Controller is the subset of monitor.Service the HTTP surface depends on.
type Controller interface {
	HealthSummary(ctx context.Context) (*monitor.HealthSummary, error)
	CheckOnDemand(ctx context.Context, provider, model, gateway string) (*domain.HealthCheckResult, error)
}

// MetricsHandler exposes the Prometheus scrape endpoint.
type MetricsHandler interface {
	Handler() http.Handler
}

// NewRouter wires the status/debug surface onto a fresh mux.Router.
func NewRouter(controller Controller, metricsHandler MetricsHandler, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		summary, err := controller.HealthSummary(req.Context())
		if err != nil {
			logger.Error("status endpoint: failed to build health summary", "error", err)
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to build health summary"})
			return
		}
		respondJSON(w, http.StatusOK, summary)
	}).Methods(http.MethodGet)

	r.HandleFunc("/check/{gateway}/{provider}/{model}", func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		gateway, provider, model := vars["gateway"], vars["provider"], vars["model"]
		if gateway == "" || provider == "" || model == "" {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "gateway, provider and model path segments are required"})
			return
		}

		result, err := controller.CheckOnDemand(req.Context(), provider, model, gateway)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			respondJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, result)
	}).Methods(http.MethodPost)

	return r
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
