package server

import (
	"encoding/json"
	"net/http"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/pipeline"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/router"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/tracer"
)

// Handler serves the operational endpoints: health, readiness, and flow
// trace lookup.
type Handler struct {
	stats     func() pipeline.Stats
	connected func() bool
	tracer    *tracer.Tracer
	log       *logging.Logger
}

// NewHandler creates the operational handler.
func NewHandler(stats func() pipeline.Stats, connected func() bool, tr *tracer.Tracer, log *logging.Logger) *Handler {
	return &Handler{stats: stats, connected: connected, tracer: tr, log: log}
}

// Health reports liveness plus a degraded flag. Broker loss or a failed
// route degrades the service but never makes it unhealthy: the process
// keeps serving connected sessions.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.stats()

	degraded := st.BrokerDegraded || !h.connected()
	for _, rh := range st.RouteHealth {
		if rh.Status == router.StatusFailed {
			degraded = true
			break
		}
	}

	status := "ok"
	if degraded {
		status = "degraded"
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"broker_degraded": st.BrokerDegraded,
		"events_received": st.EventsReceived,
		"events_dropped":  st.EventsDropped,
		"queue_depth":     st.QueueDepth,
		"connections":     st.Connections,
		"route_health":    st.RouteHealth,
	})
}

// Ready reports readiness: the broker connection must answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.connected() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// Trace returns the recorded checkpoints for one flow id.
func (h *Handler) Trace(w http.ResponseWriter, r *http.Request) {
	flowID := r.URL.Query().Get("flow_id")
	if flowID == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "flow_id is required"})
		return
	}

	recs := h.tracer.Trace(flowID)
	if len(recs) == 0 {
		h.writeJSON(w, http.StatusNotFound, map[string]any{"error": "no trace for flow_id", "flow_id": flowID})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"flow_id": flowID, "checkpoints": recs})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}
