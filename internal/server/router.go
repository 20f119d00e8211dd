// Package server assembles the HTTP surface: websocket sessions plus the
// operational endpoints.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/middleware"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/session"
)

// NewRouter constructs a ServeMux with all routes registered.
func NewRouter(h *Handler, hub *session.Hub) http.Handler {
	mux := http.NewServeMux()

	// Websocket sessions
	mux.Handle("/ws", hub)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Flow trace diagnostics
	mux.HandleFunc("/trace", h.Trace)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
