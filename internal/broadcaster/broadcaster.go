// Package broadcaster fans deliverable events out to the live connections
// whose subscription filters match.
package broadcaster

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/metrics"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/registry"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/tracer"
)

var (
	// ErrSlowConsumer is returned by a Sink whose outbound buffer is full.
	// The event is dropped for that connection only; one slow consumer
	// must never delay delivery to others.
	ErrSlowConsumer = errors.New("outbound buffer full")

	// ErrSessionClosed is returned by a Sink whose connection has been
	// torn down. Deliveries racing a disconnect are skipped, counted
	// separately from slow consumers.
	ErrSessionClosed = errors.New("session closed")
)

// Sink is one connection's delivery service. Send must not block.
type Sink interface {
	Send(msg *models.Outbound) error
}

// Broadcaster pushes events to matching connections. A connection whose
// sink is not yet attached (a known startup race: the session registers
// its filter before its delivery service finishes initializing) is a
// normal "not ready" state, not an error: delivery is skipped for that
// connection and a diagnostic is logged at most once per minute per
// connection. No default connection identity is ever substituted.
type Broadcaster struct {
	registry *registry.Registry
	tr       *tracer.Tracer
	log      *logging.Logger

	mu       sync.RWMutex
	sinks    map[string]Sink
	notReady map[string]*rate.Limiter
}

// New creates a broadcaster over the given registry.
func New(reg *registry.Registry, tr *tracer.Tracer, log *logging.Logger) *Broadcaster {
	return &Broadcaster{
		registry: reg,
		tr:       tr,
		log:      log,
		sinks:    make(map[string]Sink),
		notReady: make(map[string]*rate.Limiter),
	}
}

// AttachSink marks a connection's delivery service ready.
func (b *Broadcaster) AttachSink(connID string, s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[connID] = s
	delete(b.notReady, connID)
}

// DetachSink removes a connection's delivery service.
func (b *Broadcaster) DetachSink(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sinks, connID)
	delete(b.notReady, connID)
}

// Deliver pushes the event to every matching live connection and returns
// how many connections received it.
func (b *Broadcaster) Deliver(ctx context.Context, e *models.NormalizedEvent, tier models.Tier) int {
	connIDs := b.registry.Match(e)
	if len(connIDs) == 0 {
		return 0
	}

	msg := models.AlertFrom(e, tier)
	delivered := 0
	for _, connID := range connIDs {
		b.mu.RLock()
		sink, ready := b.sinks[connID]
		b.mu.RUnlock()

		if !ready {
			b.reportNotReady(ctx, connID)
			metrics.DeliveriesSkipped.WithLabelValues("not_ready").Inc()
			continue
		}

		if err := sink.Send(msg); err != nil {
			reason := "slow_consumer"
			if errors.Is(err, ErrSessionClosed) {
				reason = "session_closed"
			}
			metrics.DeliveriesSkipped.WithLabelValues(reason).Inc()
			b.log.DebugContext(ctx, "dropped delivery",
				"connection_id", connID, "reason", reason)
			continue
		}
		delivered++
		metrics.Deliveries.Inc()
	}

	if delivered > 0 {
		b.tr.Record(e.FlowID, tracer.CheckpointDelivered)
	}
	return delivered
}

// reportNotReady logs the uninitialized-delivery diagnostic, rate limited
// to once per connection per minute to avoid per-event log flooding.
func (b *Broadcaster) reportNotReady(ctx context.Context, connID string) {
	b.mu.Lock()
	lim, ok := b.notReady[connID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute), 1)
		b.notReady[connID] = lim
	}
	b.mu.Unlock()

	if lim.Allow() {
		b.log.WarnContext(ctx, "delivery service not ready, skipping connection",
			"connection_id", connID)
	}
}
