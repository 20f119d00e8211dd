// Package dispatch provides the bounded, priority-aware queue that
// decouples ingestion from worker processing.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/metrics"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
)

var (
	// ErrQueueFull is returned when an item cannot be admitted and no
	// lower-tier item exists to evict.
	ErrQueueFull = errors.New("dispatch queue full")

	// ErrClosed is returned by Dequeue once the queue is closed and empty.
	ErrClosed = errors.New("dispatch queue closed")
)

// Queue is a bounded multi-tier FIFO queue with strict priority dequeue.
// Dequeue always returns the highest non-empty tier's oldest item, so
// critical events are never starved by backlog in lower tiers. The
// documented trade-off is that a sustained critical flood can starve
// low-tier delivery.
type Queue struct {
	mu      sync.Mutex
	tiers   [models.TierCount][]*models.PriorityItem
	caps    [models.TierCount]int
	dropped [models.TierCount]uint64
	closed  bool

	wake     chan struct{}
	closedCh chan struct{}
}

// New creates a queue with per-tier capacities in tier order
// (critical, high, normal, low).
func New(caps [models.TierCount]int) *Queue {
	q := &Queue{
		caps:     caps,
		wake:     make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
	for t := models.TierCritical; t <= models.TierLow; t++ {
		metrics.QueueDepth.WithLabelValues(t.String()).Set(0)
	}
	return q
}

// Enqueue admits an item without ever blocking the caller. When the
// incoming tier is at capacity, the oldest item of the lowest occupied
// tier below it is dropped to make room; higher tiers effectively borrow
// capacity from lower ones under saturation, keeping the total bound.
// If nothing lower priority exists to evict, the incoming item itself is
// rejected. Every drop is counted, never silently lost from metrics.
func (q *Queue) Enqueue(item *models.PriorityItem) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	ti := item.Tier
	if len(q.tiers[ti]) < q.caps[ti] {
		q.tiers[ti] = append(q.tiers[ti], item)
		depth := len(q.tiers[ti])
		q.mu.Unlock()
		metrics.QueueDepth.WithLabelValues(ti.String()).Set(float64(depth))
		q.notify()
		return nil
	}

	// Incoming tier full: drop oldest-low-tier-first below the incoming
	// tier to make room.
	for t := models.TierLow; t > ti; t-- {
		if len(q.tiers[t]) == 0 {
			continue
		}
		q.tiers[t] = q.tiers[t][1:]
		q.dropped[t]++
		q.tiers[ti] = append(q.tiers[ti], item)
		q.mu.Unlock()
		metrics.QueueDrops.WithLabelValues(t.String()).Inc()
		metrics.QueueDepth.WithLabelValues(t.String()).Dec()
		metrics.QueueDepth.WithLabelValues(ti.String()).Inc()
		q.notify()
		return nil
	}

	q.dropped[ti]++
	q.mu.Unlock()
	metrics.QueueDrops.WithLabelValues(ti.String()).Inc()
	return ErrQueueFull
}

// Dequeue blocks until an item is available, the context is cancelled, or
// the queue is closed and fully drained. It returns the oldest item of the
// highest non-empty tier (strict priority, not weighted).
func (q *Queue) Dequeue(ctx context.Context) (*models.PriorityItem, error) {
	for {
		q.mu.Lock()
		for t := models.TierCritical; t <= models.TierLow; t++ {
			if len(q.tiers[t]) == 0 {
				continue
			}
			item := q.tiers[t][0]
			q.tiers[t] = q.tiers[t][1:]
			more := q.lenLocked() > 0
			q.mu.Unlock()
			metrics.QueueDepth.WithLabelValues(t.String()).Dec()
			if more {
				// Re-arm so other waiting workers see remaining items.
				q.notify()
			}
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.closedCh:
		case <-q.wake:
		}
	}
}

// Close rejects further enqueues. Items already queued can still be
// dequeued; once empty, Dequeue returns ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.closedCh)
	}
	q.mu.Unlock()
}

// DiscardAll empties the queue and returns how many items were discarded.
// Used at shutdown once the drain grace period expires.
func (q *Queue) DiscardAll() int {
	q.mu.Lock()
	n := q.lenLocked()
	for t := models.TierCritical; t <= models.TierLow; t++ {
		q.tiers[t] = nil
	}
	q.mu.Unlock()
	for t := models.TierCritical; t <= models.TierLow; t++ {
		metrics.QueueDepth.WithLabelValues(t.String()).Set(0)
	}
	return n
}

// Len returns the total number of queued items across tiers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Depth returns the per-tier queue depths.
func (q *Queue) Depth() [models.TierCount]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	var d [models.TierCount]int
	for t := range q.tiers {
		d[t] = len(q.tiers[t])
	}
	return d
}

// Dropped returns the per-tier drop counts.
func (q *Queue) Dropped() [models.TierCount]uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) lenLocked() int {
	n := 0
	for t := range q.tiers {
		n += len(q.tiers[t])
	}
	return n
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
