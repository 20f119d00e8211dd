package models

import "time"

// OutboundType names the fixed vocabulary of events delivered to sessions.
type OutboundType string

const (
	OutboundAlert  OutboundType = "alert"
	OutboundPong   OutboundType = "pong"
	OutboundStatus OutboundType = "status"
	OutboundError  OutboundType = "error"
)

// Alert is the payload delivered for a matching pattern/indicator/tick event.
type Alert struct {
	FlowID     string         `json:"flow_id"`
	Symbol     string         `json:"symbol"`
	Kind       EventKind      `json:"kind"`
	TypeName   string         `json:"type_name"`
	Confidence *float64       `json:"confidence,omitempty"`
	Price      float64        `json:"price,omitempty"`
	DetectedAt time.Time      `json:"detected_at"`
	SourceTier string         `json:"source_tier,omitempty"`
	Tier       string         `json:"tier,omitempty"`
	Enrichment map[string]any `json:"enrichment,omitempty"`
}

// Outbound is the wire shape of every message pushed to a session.
// Code and Message are only set for error events.
type Outbound struct {
	Type    OutboundType   `json:"type"`
	Alert   *Alert         `json:"alert,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// AlertFrom builds the outbound alert payload for a processed event.
func AlertFrom(e *NormalizedEvent, tier Tier) *Outbound {
	return &Outbound{
		Type: OutboundAlert,
		Alert: &Alert{
			FlowID:     e.FlowID,
			Symbol:     e.Symbol,
			Kind:       e.Kind,
			TypeName:   e.TypeName,
			Confidence: e.Confidence,
			Price:      e.Price,
			DetectedAt: e.DetectedAt,
			SourceTier: e.SourceTier,
			Tier:       tier.String(),
			Enrichment: e.Enrichment,
		},
	}
}
