// Package pipeline wires the consume side together: broker subscription,
// normalization, routing, classification, dispatch queue, worker pool, and
// broadcast delivery.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/broadcaster"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/classifier"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/config"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/dispatch"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/messaging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/metrics"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/normalizer"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/registry"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/router"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/subscriber"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/tracer"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/worker"
)

// Stats is a point-in-time snapshot of pipeline state for the status
// event and the health surface.
type Stats struct {
	EventsReceived uint64                          `json:"events_received"`
	EventsDropped  uint64                          `json:"events_dropped"`
	QueueDepth     [models.TierCount]int           `json:"queue_depth"`
	QueueDropped   [models.TierCount]uint64        `json:"queue_dropped"`
	Connections    int                             `json:"connections"`
	RouteHealth    map[string]router.ChannelHealth `json:"route_health"`
	TracerDropped  int64                           `json:"tracer_dropped"`
	BrokerDegraded bool                            `json:"broker_degraded"`
}

// Pipeline owns the full ingest-to-delivery flow.
type Pipeline struct {
	log    *logging.Logger
	norm   *normalizer.Normalizer
	cls    *classifier.Classifier
	routes *router.Router
	queue  *dispatch.Queue
	reg    *registry.Registry
	bc     *broadcaster.Broadcaster
	tr     *tracer.Tracer
	sub    *subscriber.Subscriber
	pool   *worker.Pool

	grace    time.Duration
	received atomic.Uint64
	dropped  atomic.Uint64

	stopIntake  context.CancelFunc
	stopWorkers context.CancelFunc
	subDone     chan struct{}
}

// New builds a pipeline from configuration and a broker client.
func New(cfg *config.Config, broker messaging.Subscriber, log *logging.Logger) *Pipeline {
	p := &Pipeline{
		log:     log,
		norm:    normalizer.New(),
		cls:     classifier.New(),
		reg:     registry.New(),
		tr:      tracer.New(cfg.Tracer.Buffer, cfg.Tracer.MaxFlows),
		grace:   cfg.Shutdown.GracePeriod,
		subDone: make(chan struct{}),
	}
	p.routes = router.New(router.Config{
		DegradeAfter: cfg.Router.DegradeAfter,
		FailAfter:    cfg.Router.FailAfter,
		Cooldown:     cfg.Router.Cooldown,
	}, log)
	p.queue = dispatch.New(cfg.Queue.TierCapacities())
	p.bc = broadcaster.New(p.reg, p.tr, log)
	p.pool = worker.New(cfg.Workers.Count, p.queue, p.routes, p.bc, p.tr, log)
	p.sub = subscriber.New(broker, subscriber.Config{
		Channels:       cfg.Broker.Channels,
		InitialBackoff: cfg.Subscriber.InitialBackoff,
		MaxBackoff:     cfg.Subscriber.MaxBackoff,
		RetryCeiling:   cfg.Subscriber.RetryCeiling,
	}, p.handleRaw, log)
	return p
}

// Registry exposes the subscription registry for the session layer.
func (p *Pipeline) Registry() *registry.Registry { return p.reg }

// Broadcaster exposes the broadcaster for sink attachment.
func (p *Pipeline) Broadcaster() *broadcaster.Broadcaster { return p.bc }

// Tracer exposes the flow tracer for the diagnostics surface.
func (p *Pipeline) Tracer() *tracer.Tracer { return p.tr }

// Start launches the tracer drain, the worker pool, and the broker
// subscription loop. It returns immediately.
func (p *Pipeline) Start(ctx context.Context) {
	intakeCtx, stopIntake := context.WithCancel(ctx)
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	p.stopIntake = stopIntake
	p.stopWorkers = stopWorkers

	p.tr.Start(workerCtx)
	p.pool.Start(workerCtx)
	go func() {
		defer close(p.subDone)
		_ = p.sub.Run(intakeCtx)
	}()
	p.log.Info("pipeline started")
}

// Shutdown stops intake immediately, lets the workers drain the queue for
// the grace period, then discards whatever remains. Live websocket
// sessions are closed by the server layer, not here.
func (p *Pipeline) Shutdown() {
	p.stopIntake()
	<-p.subDone

	p.queue.Close()
	deadline := time.NewTimer(p.grace)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

drain:
	for p.queue.Len() > 0 {
		select {
		case <-deadline.C:
			break drain
		case <-tick.C:
		}
	}

	if n := p.queue.DiscardAll(); n > 0 {
		p.log.Warn("shutdown grace period expired, discarding queued events", "discarded", n)
	}
	p.pool.Wait()
	p.stopWorkers()
	p.log.Info("pipeline stopped",
		"events_received", p.received.Load(), "events_dropped", p.dropped.Load())
}

// Stats returns a snapshot of pipeline state.
func (p *Pipeline) Stats() Stats {
	return Stats{
		EventsReceived: p.received.Load(),
		EventsDropped:  p.dropped.Load(),
		QueueDepth:     p.queue.Depth(),
		QueueDropped:   p.queue.Dropped(),
		Connections:    p.reg.Count(),
		RouteHealth:    p.routes.Health(),
		TracerDropped:  p.tr.Dropped(),
		BrokerDegraded: p.sub.Degraded(),
	}
}

// handleRaw runs on the subscriber goroutine for every broker message.
// Everything past the enqueue happens on a worker; the fallback path
// delivers synchronously right here, bypassing enrichment.
func (p *Pipeline) handleRaw(ctx context.Context, raw models.RawMessage) {
	p.received.Add(1)

	ev, err := p.norm.Normalize(raw)
	if err != nil {
		p.dropped.Add(1)
		metrics.NormalizationDrops.WithLabelValues(dropReason(err)).Inc()
		p.log.Warn("dropping unparseable message",
			"channel", raw.Channel, "error", err,
			"payload", normalizer.Excerpt(raw.Data, 256))
		return
	}
	p.tr.Record(ev.FlowID, tracer.CheckpointReceived)
	p.tr.Record(ev.FlowID, tracer.CheckpointParsed)

	dec := p.routes.Route(ev)
	p.tr.Record(ev.FlowID, tracer.CheckpointRouted)

	tier := p.cls.Classify(ev)
	p.tr.Record(ev.FlowID, tracer.CheckpointClassified)

	if dec.Fallback {
		p.bc.Deliver(ctx, ev, tier)
		p.routes.ReportOutcome(dec.RouteID, true)
		return
	}

	item := &models.PriorityItem{
		Event:      ev,
		Tier:       tier,
		RouteID:    dec.RouteID,
		EnqueuedAt: time.Now(),
	}
	if err := p.queue.Enqueue(item); err != nil {
		p.dropped.Add(1)
		// Saturation on the primary path counts against its health, which
		// diverts subsequent events to the synchronous fallback.
		p.routes.ReportOutcome(dec.RouteID, false)
		p.log.Warn("queue rejected event",
			"flow_id", ev.FlowID, "tier", tier.String(), "error", err)
		return
	}
	p.tr.Record(ev.FlowID, tracer.CheckpointQueued)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, normalizer.ErrMissingSymbol):
		return "missing_symbol"
	default:
		return "malformed"
	}
}
