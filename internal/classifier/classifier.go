// Package classifier assigns a priority tier to each normalized event.
package classifier

import (
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
)

// haltTypes are market-halt/risk type names that are always critical,
// regardless of confidence.
var haltTypes = map[string]struct{}{
	"market_halt":     {},
	"trading_halt":    {},
	"circuit_breaker": {},
	"risk_alert":      {},
}

// Classifier computes priority tiers from a deterministic rule table.
type Classifier struct{}

// New creates a classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify evaluates the rule table top to bottom; the first match wins.
// Ties within a tier are broken by arrival order in the dispatch queue,
// never by symbol or type.
func (c *Classifier) Classify(e *models.NormalizedEvent) models.Tier {
	if _, halt := haltTypes[e.TypeName]; halt {
		return models.TierCritical
	}
	if e.HasConfidence() && *e.Confidence >= 0.9 {
		return models.TierCritical
	}
	if e.HasConfidence() && *e.Confidence >= 0.75 {
		return models.TierHigh
	}
	if e.HasConfidence() {
		return models.TierNormal
	}
	if e.Kind == models.KindPattern || e.Kind == models.KindIndicator {
		return models.TierNormal
	}
	return models.TierLow
}
