package models

import "time"

// Tier is the priority class used for dispatch queue ordering.
// Lower values dequeue first.
type Tier int

const (
	TierCritical Tier = iota
	TierHigh
	TierNormal
	TierLow

	// TierCount is the number of priority tiers.
	TierCount = 4
)

func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierHigh:
		return "high"
	case TierNormal:
		return "normal"
	case TierLow:
		return "low"
	default:
		return "unknown"
	}
}

// PriorityItem wraps a normalized event with its computed tier and the
// route it was assigned at ingest time. The tier is never mutated after
// creation.
type PriorityItem struct {
	Event      *NormalizedEvent
	Tier       Tier
	RouteID    string
	EnqueuedAt time.Time
}
