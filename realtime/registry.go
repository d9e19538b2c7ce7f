// Package realtime holds the process-wide mutable state of the core: which
// users are reachable and which rooms their connections joined. Everything
// here is in-memory only and rebuilt on restart.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"telecare/contract"
	"telecare/domain"
	"telecare/domain/event"
)

type presenceEntry struct {
	identity domain.Identity
	sink     contract.EventSink
	lastSeen time.Time
}

// Registry maps a user id to its single live connection.
// It is injected into every handler; there is no package-level instance.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]presenceEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]presenceEntry)}
}

// Register inserts or replaces the entry for the identity's user id and
// returns the evicted sink when a previous connection existed
// (last-writer-wins, at most one entry per user).
func (r *Registry) Register(identity domain.Identity, sink contract.EventSink) contract.EventSink {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted contract.EventSink
	if previous, ok := r.entries[identity.UserID]; ok {
		evicted = previous.sink
	}
	r.entries[identity.UserID] = presenceEntry{
		identity: identity,
		sink:     sink,
		lastSeen: time.Now().UTC(),
	}
	return evicted
}

// Unregister removes the user's entry only when it still belongs to the
// given sink. A disconnect handler racing a reconnect must not evict the
// newer connection.
func (r *Registry) Unregister(userID string, sink contract.EventSink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok || entry.sink != sink {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Lookup resolves a user's live connection, if any.
func (r *Registry) Lookup(userID string) (contract.EventSink, domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[userID]
	if !ok {
		return nil, domain.Identity{}, false
	}
	return entry.sink, entry.identity, true
}

// Snapshot returns the current presence view for presence queries.
func (r *Registry) Snapshot() []domain.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapToSlice(r.entries, func(_ string, entry presenceEntry) domain.PresenceEntry {
		return domain.PresenceEntry{
			UserID:      entry.identity.UserID,
			Role:        entry.identity.Role,
			DisplayName: entry.identity.DisplayName,
			LastSeen:    entry.lastSeen,
		}
	})
}

// Fanout delivers an event to every connected user except one (usually the
// originator). Sinks are collected under the read lock but consumed outside
// it so a slow connection cannot stall the registry.
func (r *Registry) Fanout(ctx context.Context, e event.Event, exceptUserID string) {
	r.mu.RLock()
	sinks := make([]contract.EventSink, 0, len(r.entries))
	for userID, entry := range r.entries {
		if userID == exceptUserID {
			continue
		}
		sinks = append(sinks, entry.sink)
	}
	r.mu.RUnlock()

	for _, sink := range sinks {
		// Best effort: a saturated sink loses broadcast events.
		_ = sink.Consume(ctx, e)
	}
}

// Size reports the number of live connections.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
