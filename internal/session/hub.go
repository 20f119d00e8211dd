// Package session manages websocket connections: upgrade, per-connection
// filter registration, outbound delivery, and the control message protocol.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/broadcaster"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/config"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/metrics"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/registry"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/tracer"
)

// StatusFunc supplies the payload for status requests.
type StatusFunc func() map[string]any

// PreferenceStore supplies a connection's initial filter. The store is
// read-only from this service's perspective; filter updates go through
// the subscribe control message, never back into the store.
type PreferenceStore interface {
	// InitialFilter returns the stored filter for a connection, or
	// false when the store has no entry.
	InitialFilter(connID string) (models.Subscription, bool)
}

// NoPreferences is the fallback store with no stored filters. Every
// connection starts unrestricted until its first subscribe message.
type NoPreferences struct{}

func (NoPreferences) InitialFilter(string) (models.Subscription, bool) {
	return models.Subscription{}, false
}

// Hub tracks live sessions and wires each one into the registry and the
// broadcaster.
type Hub struct {
	registry *registry.Registry
	bc       *broadcaster.Broadcaster
	tracer   *tracer.Tracer
	status   StatusFunc
	prefs    PreferenceStore
	cfg      config.SessionConfig
	log      *logging.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHub creates a hub.
func NewHub(reg *registry.Registry, bc *broadcaster.Broadcaster, tr *tracer.Tracer, status StatusFunc, prefs PreferenceStore, cfg config.SessionConfig, log *logging.Logger) *Hub {
	if prefs == nil {
		prefs = NoPreferences{}
	}
	return &Hub{
		registry: reg,
		bc:       bc,
		tracer:   tr,
		status:   status,
		prefs:    prefs,
		cfg:      cfg,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary dashboard origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
	}
}

// ServeHTTP upgrades the request and runs the session until it drops.
// The filter is registered before the sink is attached, so an event
// arriving in between is skipped as not-ready rather than misdelivered.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	id := uuid.New().String()
	s := newSession(id, conn, h, h.log)

	h.registry.Register(h.initialFilter(id))

	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()

	go s.writePump()
	h.bc.AttachSink(id, s)
	metrics.ConnectedSessions.Inc()
	h.log.Info("session connected", "connection_id", id, "remote", r.RemoteAddr)

	s.readPump(r.Context())
}

// initialFilter consults the preference store for a stored filter,
// falling back to an unrestricted subscription when none exists.
func (h *Hub) initialFilter(connID string) models.Subscription {
	sub, ok := h.prefs.InitialFilter(connID)
	if !ok {
		return models.NewSubscription(connID, nil, nil, nil, 0)
	}
	sub.ConnectionID = connID
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	return sub
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every live session with a going-away frame.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.drop(s)
	}
}

// drop tears one session down. Safe to call more than once per session.
func (h *Hub) drop(s *Session) {
	h.mu.Lock()
	if _, live := h.sessions[s.id]; !live {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.id)
	h.mu.Unlock()

	h.bc.DetachSink(s.id)
	h.registry.Unregister(s.id)
	close(s.done)
	_ = s.conn.Close()
	metrics.ConnectedSessions.Dec()
	h.log.Info("session disconnected", "connection_id", s.id)
}
