// Package server wires HTTP handlers into a router for the Huddle
// application.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns the application router: health check,
// WebSocket endpoint, test page, and Prometheus metrics.
func SetupRoutes(hub *Hub, cfg *Config, log *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", NewWebSocketHandler(hub, cfg, log))
	r.HandleFunc("/test", TestPageHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}
