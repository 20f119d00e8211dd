// Package worker runs the fixed pool that drains the dispatch queue,
// enriches events, and hands them to the broadcaster.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/broadcaster"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/dispatch"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/metrics"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/router"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/tracer"
)

// Pool is a fixed-size set of workers draining the dispatch queue. Each
// event is owned by exactly one worker from dequeue to delivery.
type Pool struct {
	size   int
	queue  *dispatch.Queue
	routes *router.Router
	bc     *broadcaster.Broadcaster
	tr     *tracer.Tracer
	log    *logging.Logger

	wg sync.WaitGroup
}

// New creates a worker pool.
func New(size int, queue *dispatch.Queue, routes *router.Router, bc *broadcaster.Broadcaster, tr *tracer.Tracer, log *logging.Logger) *Pool {
	if size <= 0 {
		size = 4
	}
	return &Pool{
		size:   size,
		queue:  queue,
		routes: routes,
		bc:     bc,
		tr:     tr,
		log:    log,
	}
}

// Start launches the workers. They exit when ctx is cancelled or the
// queue is closed and drained.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		item, err := p.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, dispatch.ErrClosed) && !errors.Is(err, context.Canceled) {
				p.log.Error("worker dequeue failed", "worker", id, "error", err)
			}
			return
		}
		p.process(ctx, item)
	}
}

// process enriches and delivers one event. A panic in processing drops
// that event only; the worker recovers and keeps serving the queue.
func (p *Pool) process(ctx context.Context, item *models.PriorityItem) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerFailures.Inc()
			p.log.Error("worker recovered from panic, event dropped",
				"flow_id", item.Event.FlowID, "panic", fmt.Sprint(r))
			p.routes.ReportOutcome(item.RouteID, false)
		}
	}()

	enrich(item.Event, item.Tier, item.EnqueuedAt)
	p.tr.Record(item.Event.FlowID, tracer.CheckpointProcessed)

	p.bc.Deliver(ctx, item.Event, item.Tier)

	metrics.EventsProcessed.WithLabelValues(string(item.Event.Kind), item.Tier.String()).Inc()
	p.routes.ReportOutcome(item.RouteID, true)
}

// enrich attaches derived metadata. The worker is the event's sole owner
// at this point, so writing the Enrichment field needs no lock.
func enrich(e *models.NormalizedEvent, tier models.Tier, enqueuedAt time.Time) {
	enr := map[string]any{
		"priority":     tier.String(),
		"processed_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if !enqueuedAt.IsZero() {
		enr["queue_wait_ms"] = time.Since(enqueuedAt).Milliseconds()
	}

	switch e.Kind {
	case models.KindPattern:
		if e.HasConfidence() {
			enr["confidence_band"] = confidenceBand(*e.Confidence)
		}
	case models.KindIndicator:
		if v, ok := e.RawExtras["value"]; ok {
			enr["value"] = v
		}
	case models.KindTick:
		if e.Price > 0 && e.Volume > 0 {
			enr["notional"] = e.Price * float64(e.Volume)
		}
	}
	e.Enrichment = enr
}

func confidenceBand(c float64) string {
	switch {
	case c >= 0.9:
		return "very_high"
	case c >= 0.75:
		return "high"
	case c >= 0.5:
		return "medium"
	default:
		return "low"
	}
}
