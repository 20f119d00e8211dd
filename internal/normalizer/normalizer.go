// Package normalizer extracts canonical event records from the producer's
// envelope format. The producer is known to nest full envelopes inside the
// data field with duplicated top-level fields; normalization unwraps to the
// innermost leaf payload, which is always authoritative.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
)

var (
	// ErrMalformed indicates a payload that could not be parsed at all.
	ErrMalformed = errors.New("malformed payload")

	// ErrMissingSymbol indicates a parseable event with no symbol; such
	// an event cannot be routed or filtered and is dropped.
	ErrMissingSymbol = errors.New("event has no symbol")
)

// Fields the normalizer maps onto NormalizedEvent. Everything else from the
// leaf payload is preserved in RawExtras.
var consumedFields = map[string]struct{}{
	"symbol": {}, "pattern": {}, "pattern_type": {},
	"indicator": {}, "indicator_type": {},
	"confidence": {}, "price": {}, "close": {}, "volume": {},
	"detected_at": {}, "timestamp": {},
	"source_tier": {}, "timeframe": {},
	"flow_id": {}, "event_type": {}, "source": {},
}

// Normalizer converts raw broker messages into NormalizedEvents.
type Normalizer struct{}

// New creates a normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize parses the raw message, unwraps nested envelopes to the
// innermost leaf payload, and extracts the canonical event record.
// Exactly one canonical record is produced per message.
func (n *Normalizer) Normalize(raw models.RawMessage) (*models.NormalizedEvent, error) {
	var outer map[string]any
	if err := json.Unmarshal(raw.Data, &outer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	leaf, flowID, eventType := unwrap(outer)

	symbol := stringField(leaf, "symbol")
	if symbol == "" {
		return nil, ErrMissingSymbol
	}

	extras := make(map[string]any)

	typeName := extractTypeName(leaf, extras)
	confidence := floatFieldPtr(leaf, "confidence")

	price := floatField(leaf, "price")
	if price == 0 {
		price = floatField(leaf, "close")
	}

	ev := &models.NormalizedEvent{
		FlowID:     flowID,
		Kind:       deriveKind(eventType, leaf),
		Symbol:     symbol,
		TypeName:   typeName,
		Confidence: confidence,
		Price:      price,
		Volume:     int64(floatField(leaf, "volume")),
		DetectedAt: extractTime(leaf, raw.ReceivedAt),
		SourceTier: extractSourceTier(leaf, raw.Channel),
	}
	if ev.FlowID == "" {
		// Synthesize so every event stays traceable end to end.
		ev.FlowID = uuid.New().String()
	}

	for k, v := range leaf {
		if _, consumed := consumedFields[k]; !consumed {
			extras[k] = v
		}
	}
	if len(extras) > 0 {
		ev.RawExtras = extras
	}

	return ev, nil
}

// unwrap descends through nested envelopes until it reaches the leaf
// payload, returning the leaf, the innermost flow id seen, and the
// innermost event_type seen. Outer duplicates are always redundant of the
// innermost structure, so the deepest values win.
func unwrap(outer map[string]any) (leaf map[string]any, flowID, eventType string) {
	current := outer
	for {
		if id := stringField(current, "flow_id"); id != "" {
			flowID = id
		}
		if et := stringField(current, "event_type"); et != "" {
			eventType = et
		}

		data, ok := current["data"].(map[string]any)
		if !ok {
			// No nested data object: current is the leaf payload.
			return current, flowID, eventType
		}
		if isEnvelope(data) {
			current = data
			continue
		}
		// data is the concrete payload.
		if id := stringField(data, "flow_id"); id != "" {
			flowID = id
		}
		return data, flowID, eventType
	}
}

// isEnvelope reports whether a nested data object is itself a full
// envelope rather than a concrete payload.
func isEnvelope(m map[string]any) bool {
	if _, ok := m["event_type"]; ok {
		return true
	}
	_, hasSource := m["source"]
	_, hasTimestamp := m["timestamp"]
	_, hasData := m["data"]
	return hasSource && hasTimestamp && hasData
}

// extractTypeName tries, in order: pattern, pattern_type, then
// indicator-specific field names. When pattern and pattern_type disagree,
// the more specific pattern wins and the discrepancy is preserved for
// diagnostics rather than silently discarded.
func extractTypeName(leaf map[string]any, extras map[string]any) string {
	pattern := stringField(leaf, "pattern")
	patternType := stringField(leaf, "pattern_type")

	if pattern != "" {
		if patternType != "" && patternType != pattern {
			extras["pattern_type_discrepancy"] = patternType
		}
		return pattern
	}
	if patternType != "" {
		return patternType
	}
	for _, field := range []string{"indicator", "indicator_type"} {
		if v := stringField(leaf, field); v != "" {
			return v
		}
	}
	return ""
}

func deriveKind(eventType string, leaf map[string]any) models.EventKind {
	switch {
	case strings.Contains(eventType, "pattern"):
		return models.KindPattern
	case strings.Contains(eventType, "indicator"):
		return models.KindIndicator
	case strings.Contains(eventType, "tick"):
		return models.KindTick
	}

	// No usable event_type; infer from the payload fields.
	if stringField(leaf, "pattern") != "" || stringField(leaf, "pattern_type") != "" {
		return models.KindPattern
	}
	if stringField(leaf, "indicator") != "" || stringField(leaf, "indicator_type") != "" {
		return models.KindIndicator
	}
	return models.KindTick
}

func extractTime(leaf map[string]any, fallback time.Time) time.Time {
	for _, field := range []string{"detected_at", "timestamp"} {
		switch v := leaf[field].(type) {
		case float64:
			sec := int64(v)
			nsec := int64((v - float64(sec)) * 1e9)
			return time.Unix(sec, nsec)
		case string:
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return ts
			}
		}
	}
	return fallback
}

func extractSourceTier(leaf map[string]any, channel string) string {
	if tier := stringField(leaf, "source_tier"); tier != "" {
		return tier
	}
	if tier := stringField(leaf, "timeframe"); tier != "" {
		return tier
	}
	for _, tier := range []string{"daily", "intraday", "combo"} {
		if strings.HasSuffix(channel, "."+tier) {
			return tier
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func floatFieldPtr(m map[string]any, key string) *float64 {
	if v, ok := m[key].(float64); ok {
		return &v
	}
	return nil
}

// Excerpt returns a bounded prefix of a raw payload for diagnostic logs.
func Excerpt(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
