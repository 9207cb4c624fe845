// Package api assembles the HTTP surface of the relay.
package api

import (
	"chat-relay/observability"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	WebSocketPath = "/ws"
	HealthPath    = "/health"
	MetricsPath   = "/metrics"

	healthTimeout = 3 * time.Second
)

// NewRouter mounts the WebSocket handler next to the health and metrics endpoints.
func NewRouter(log *slog.Logger, ws http.Handler, probes map[string]observability.Probe, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle(MetricsPath, promhttp.Handler())
	r.Get(HealthPath, health(log, probes))
	r.Get(WebSocketPath, ws.ServeHTTP)

	return r
}

// health replies 200 when every probe passes, 503 otherwise.
func health(log *slog.Logger, probes map[string]observability.Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		report := observability.Evaluate(ctx, probes)
		statusCode := http.StatusOK
		if !report.Healthy() {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		if err := json.NewEncoder(w).Encode(report); err != nil {
			log.Error("Health report not written", "error", err)
		}
	}
}
