// Package router decides which processing path an event takes and tracks
// the health of each path as an explicit state machine:
//
//	healthy -> degraded (N consecutive failures)
//	degraded -> failed  (M consecutive failures)
//	failed  -> degraded (a primary success is recorded)
//	degraded -> healthy (cooldown elapses with observed successes)
//
// While a route is failed, events of that kind take the fallback path: a
// simpler, synchronous delivery path bypassing enrichment. One primary
// probe per cooldown interval is allowed so the route can recover.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/metrics"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
)

// Status is the health state of one route.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// ChannelHealth is a snapshot of one route's health, exposed for the
// operator-facing health surface.
type ChannelHealth struct {
	RouteID             string    `json:"route_id"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccessAt       time.Time `json:"last_success_at,omitzero"`
	Status              Status    `json:"status"`
}

// Decision is the outcome of routing one event.
type Decision struct {
	// RouteID identifies the path whose outcome must be reported.
	RouteID string

	// Fallback is true when the event should take the synchronous
	// delivery path that bypasses enrichment.
	Fallback bool
}

type routeState struct {
	consecutiveFailures int
	status              Status
	lastSuccess         time.Time
	// cooldownUntil is set when recovery starts; the route is promoted
	// back to healthy once it passes with successes still observed.
	cooldownUntil time.Time
	lastProbe     time.Time
}

// Config holds the health thresholds.
type Config struct {
	// DegradeAfter is the consecutive-failure count that marks a route
	// degraded.
	DegradeAfter int

	// FailAfter is the consecutive-failure count that marks a route
	// failed and diverts traffic to the fallback.
	FailAfter int

	// Cooldown is both the recovery observation window and the interval
	// between primary probes while a route is failed.
	Cooldown time.Duration
}

// Router maintains per-route health and picks primary or fallback paths.
// Updates are atomic per route; there is no ordering across routes.
type Router struct {
	mu     sync.Mutex
	routes map[string]*routeState
	cfg    Config
	log    *logging.Logger

	now func() time.Time
}

// New creates a router.
func New(cfg Config, log *logging.Logger) *Router {
	if cfg.DegradeAfter <= 0 {
		cfg.DegradeAfter = 3
	}
	if cfg.FailAfter < cfg.DegradeAfter {
		cfg.FailAfter = cfg.DegradeAfter
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Router{
		routes: make(map[string]*routeState),
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// PrimaryRoute returns the primary route id for an event kind.
func PrimaryRoute(kind models.EventKind) string {
	return fmt.Sprintf("%s.primary", kind)
}

// FallbackRoute returns the fallback route id for an event kind.
func FallbackRoute(kind models.EventKind) string {
	return fmt.Sprintf("%s.fallback", kind)
}

// Route picks the processing path for an event. Events of a failed kind
// take the fallback until the primary records a success and completes its
// cooldown; one primary probe per cooldown interval keeps recovery
// possible.
func (r *Router) Route(e *models.NormalizedEvent) Decision {
	primary := PrimaryRoute(e.Kind)

	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.stateLocked(primary)
	if state.status != StatusFailed {
		return Decision{RouteID: primary}
	}

	now := r.now()
	if now.Sub(state.lastProbe) >= r.cfg.Cooldown {
		state.lastProbe = now
		return Decision{RouteID: primary}
	}

	metrics.RouteFallbacks.WithLabelValues(primary).Inc()
	return Decision{RouteID: FallbackRoute(e.Kind), Fallback: true}
}

// ReportOutcome records a processing success or failure for a route.
// Fallback outcomes are tracked under their own route id: a fallback
// success never resets the primary route's failure counter, and a
// fallback delivering successfully never makes the primary look healthy.
func (r *Router) ReportOutcome(routeID string, success bool) {
	r.mu.Lock()
	state := r.stateLocked(routeID)
	now := r.now()

	if success {
		state.consecutiveFailures = 0
		state.lastSuccess = now
		switch state.status {
		case StatusFailed:
			state.status = StatusDegraded
			state.cooldownUntil = now.Add(r.cfg.Cooldown)
			r.mu.Unlock()
			r.log.Info("route recovering", "route", routeID)
			return
		case StatusDegraded:
			if !state.cooldownUntil.IsZero() && !now.Before(state.cooldownUntil) {
				state.status = StatusHealthy
				state.cooldownUntil = time.Time{}
				r.mu.Unlock()
				r.log.Info("route healthy", "route", routeID)
				return
			}
		}
		r.mu.Unlock()
		return
	}

	state.consecutiveFailures++
	failures := state.consecutiveFailures
	prev := state.status
	switch {
	case failures >= r.cfg.FailAfter:
		state.status = StatusFailed
		state.cooldownUntil = time.Time{}
		// Suppress an immediate probe right after failing over.
		state.lastProbe = now
	case failures >= r.cfg.DegradeAfter:
		state.status = StatusDegraded
	}
	status := state.status
	exhausted := isFallback(routeID) && r.primaryFailedLocked(routeID)
	r.mu.Unlock()

	if status != prev {
		r.log.Warn("route state changed",
			"route", routeID, "from", string(prev), "to", string(status),
			"consecutive_failures", failures)
	}
	if exhausted {
		// Both the primary and its fallback are failing. Fatal for this
		// route, but other routes and the process keep going.
		metrics.RouteExhausted.WithLabelValues(routeID).Inc()
		r.log.Error("route exhausted: primary and fallback both failing", "route", routeID)
	}
}

// Health returns a snapshot of every known route's health.
func (r *Router) Health() map[string]ChannelHealth {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]ChannelHealth, len(r.routes))
	for id, s := range r.routes {
		out[id] = ChannelHealth{
			RouteID:             id,
			ConsecutiveFailures: s.consecutiveFailures,
			LastSuccessAt:       s.lastSuccess,
			Status:              s.status,
		}
	}
	return out
}

func (r *Router) stateLocked(routeID string) *routeState {
	s, ok := r.routes[routeID]
	if !ok {
		s = &routeState{status: StatusHealthy}
		r.routes[routeID] = s
	}
	return s
}

func (r *Router) primaryFailedLocked(fallbackID string) bool {
	primary := primaryFor(fallbackID)
	s, ok := r.routes[primary]
	return ok && s.status == StatusFailed
}

func isFallback(routeID string) bool {
	return len(routeID) > len(".fallback") &&
		routeID[len(routeID)-len(".fallback"):] == ".fallback"
}

func primaryFor(fallbackID string) string {
	kind := fallbackID[:len(fallbackID)-len(".fallback")]
	return kind + ".primary"
}
