// Package models defines the event types that flow through the fan-out pipeline.
package models

import (
	"time"
)

// EventKind classifies what an event describes.
type EventKind string

const (
	KindPattern   EventKind = "pattern"
	KindIndicator EventKind = "indicator"
	KindTick      EventKind = "tick"
)

// RawMessage is an unparsed message as received from the broker.
// It is owned by the channel subscriber until it is parsed.
type RawMessage struct {
	Channel    string
	Data       []byte
	ReceivedAt time.Time
}

// EventEnvelope is the outer wrapper published by the upstream producer.
// Data may itself contain a nested envelope with duplicated top-level
// fields; the normalizer unwraps to the innermost payload.
type EventEnvelope struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source,omitempty"`
	Timestamp float64        `json:"timestamp,omitempty"`
	FlowID    string         `json:"flow_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// NormalizedEvent is the canonical event record produced by the normalizer.
// It is immutable once created; only priority and delivery metadata are
// attached downstream. Confidence is nil when the producer did not report
// one - it is never defaulted to zero.
type NormalizedEvent struct {
	FlowID     string         `json:"flow_id"`
	Kind       EventKind      `json:"kind"`
	Symbol     string         `json:"symbol"`
	TypeName   string         `json:"type_name"`
	Confidence *float64       `json:"confidence,omitempty"`
	Price      float64        `json:"price,omitempty"`
	Volume     int64          `json:"volume,omitempty"`
	DetectedAt time.Time      `json:"detected_at"`
	SourceTier string         `json:"source_tier,omitempty"`
	RawExtras  map[string]any `json:"raw_extras,omitempty"`

	// Enrichment is attached by the worker that processes the event.
	// Exactly one worker owns an event in flight, so no locking is needed.
	Enrichment map[string]any `json:"enrichment,omitempty"`
}

// HasConfidence reports whether the producer supplied a confidence score.
func (e *NormalizedEvent) HasConfidence() bool {
	return e.Confidence != nil
}
