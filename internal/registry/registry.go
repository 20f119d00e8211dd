// Package registry holds each connected session's subscription filter.
// Reads vastly outnumber writes, so the store is a read-mostly RWMutex map.
package registry

import (
	"sync"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
)

// Registry is the concurrency-safe store of active subscriptions.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]models.Subscription
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{subs: make(map[string]models.Subscription)}
}

// Register stores a connection's subscription. A connection has at most
// one active subscription; the latest replaces any prior one.
func (r *Registry) Register(sub models.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prior, ok := r.subs[sub.ConnectionID]; ok {
		// Keep the original connect time across filter updates.
		sub.CreatedAt = prior.CreatedAt
	}
	r.subs[sub.ConnectionID] = sub
}

// UpdateFilter replaces the connection's filter. Identical to Register;
// both are safe to call concurrently with matching.
func (r *Registry) UpdateFilter(sub models.Subscription) {
	r.Register(sub)
}

// Unregister removes a connection's subscription.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, connID)
}

// Get returns the subscription for a connection, if registered.
func (r *Registry) Get(connID string) (models.Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[connID]
	return sub, ok
}

// Match returns the ids of every connection whose filter matches the
// event (fan-out set).
func (r *Registry) Match(e *models.NormalizedEvent) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, sub := range r.subs {
		if sub.Matches(e) {
			out = append(out, id)
		}
	}
	return out
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
