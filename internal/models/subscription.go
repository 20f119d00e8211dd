package models

import "time"

// Subscription holds one connected session's filter criteria. A connection
// has at most one active subscription; the latest filter replaces any prior
// one. Empty Symbols, Kinds or PatternTypes sets mean "no restriction" -
// the documented neutral defaults for absent preference attributes.
type Subscription struct {
	ConnectionID  string
	Symbols       map[string]struct{}
	Kinds         map[EventKind]struct{}
	PatternTypes  map[string]struct{}
	MinConfidence float64
	CreatedAt     time.Time
}

// NewSubscription builds a subscription from slice-form filter fields,
// applying neutral defaults for anything absent.
func NewSubscription(connID string, symbols []string, kinds []string, patternTypes []string, minConfidence float64) Subscription {
	sub := Subscription{
		ConnectionID:  connID,
		Symbols:       make(map[string]struct{}, len(symbols)),
		Kinds:         make(map[EventKind]struct{}, len(kinds)),
		PatternTypes:  make(map[string]struct{}, len(patternTypes)),
		MinConfidence: minConfidence,
		CreatedAt:     time.Now(),
	}
	for _, s := range symbols {
		if s != "" {
			sub.Symbols[s] = struct{}{}
		}
	}
	for _, k := range kinds {
		if k != "" {
			sub.Kinds[EventKind(k)] = struct{}{}
		}
	}
	for _, p := range patternTypes {
		if p != "" {
			sub.PatternTypes[p] = struct{}{}
		}
	}
	return sub
}

// Matches reports whether the event passes this subscription's filter.
// An event with no confidence passes the confidence threshold; absence
// is not treated as zero.
func (s *Subscription) Matches(e *NormalizedEvent) bool {
	if len(s.Symbols) > 0 {
		if _, ok := s.Symbols[e.Symbol]; !ok {
			return false
		}
	}
	if len(s.Kinds) > 0 {
		if _, ok := s.Kinds[e.Kind]; !ok {
			return false
		}
	}
	if len(s.PatternTypes) > 0 {
		if _, ok := s.PatternTypes[e.TypeName]; !ok {
			return false
		}
	}
	if s.MinConfidence > 0 && e.HasConfidence() && *e.Confidence < s.MinConfidence {
		return false
	}
	return true
}
