// Package tracer records per-flow checkpoints for pipeline diagnostics.
// Appends are fire-and-forget: the write path never blocks the pipeline
// and shares no lock with the dispatch queue. Under backpressure,
// checkpoints are dropped and counted.
package tracer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/metrics"
)

// Checkpoint names one pipeline stage hand-off.
type Checkpoint string

const (
	CheckpointReceived   Checkpoint = "received"
	CheckpointParsed     Checkpoint = "parsed"
	CheckpointRouted     Checkpoint = "routed"
	CheckpointClassified Checkpoint = "classified"
	CheckpointQueued     Checkpoint = "queued"
	CheckpointProcessed  Checkpoint = "processed"
	CheckpointDelivered  Checkpoint = "delivered"
)

// Record is one appended checkpoint.
type Record struct {
	FlowID     string     `json:"flow_id"`
	Checkpoint Checkpoint `json:"checkpoint"`
	At         time.Time  `json:"at"`
}

// Tracer buffers checkpoint records through a channel drained by a single
// goroutine. Per-flow history is append-only and bounded; the oldest flows
// are evicted when the flow limit is reached.
type Tracer struct {
	ch       chan Record
	dropped  atomic.Int64
	maxFlows int

	mu     sync.RWMutex
	traces map[string][]Record
	order  []string
}

// New creates a tracer with the given channel buffer and flow limit.
func New(buffer, maxFlows int) *Tracer {
	if buffer <= 0 {
		buffer = 1024
	}
	if maxFlows <= 0 {
		maxFlows = 10000
	}
	return &Tracer{
		ch:       make(chan Record, buffer),
		maxFlows: maxFlows,
		traces:   make(map[string][]Record),
	}
}

// Start launches the drain goroutine. It returns when ctx is cancelled.
func (t *Tracer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case rec := <-t.ch:
				t.append(rec)
			}
		}
	}()
}

// Record appends a checkpoint for the flow. It never blocks; if the
// buffer is full the record is dropped and counted.
func (t *Tracer) Record(flowID string, cp Checkpoint) {
	if flowID == "" {
		return
	}
	select {
	case t.ch <- Record{FlowID: flowID, Checkpoint: cp, At: time.Now()}:
	default:
		t.dropped.Add(1)
		metrics.TraceDrops.Inc()
	}
}

// Trace returns a copy of the recorded checkpoints for a flow, in append
// order.
func (t *Tracer) Trace(flowID string) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	recs := t.traces[flowID]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}

// Dropped returns how many checkpoints were discarded under backpressure.
func (t *Tracer) Dropped() int64 {
	return t.dropped.Load()
}

func (t *Tracer) append(rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.traces[rec.FlowID]; !ok {
		if len(t.order) >= t.maxFlows {
			oldest := t.order[0]
			t.order = t.order[1:]
			delete(t.traces, oldest)
		}
		t.order = append(t.order, rec.FlowID)
	}
	t.traces[rec.FlowID] = append(t.traces[rec.FlowID], rec)
}
