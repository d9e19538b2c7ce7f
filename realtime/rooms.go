package realtime

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"telecare/contract"
	"telecare/domain/event"
)

type memberSet map[string]struct{}

// Rooms tracks which users joined which logical scope (chat pair, role
// group). Sinks are resolved through the presence registry at broadcast
// time, so a user's connection is managed in a single place even when they
// are in several rooms.
type Rooms struct {
	mu       sync.RWMutex
	registry contract.IPresenceRegistry
	members  map[string]memberSet
}

func NewRooms(registry contract.IPresenceRegistry) *Rooms {
	return &Rooms{
		registry: registry,
		members:  make(map[string]memberSet),
	}
}

// Join adds a user to a room. Joining twice has no additional effect.
func (r *Rooms) Join(roomKey, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[roomKey]; !ok {
		r.members[roomKey] = make(memberSet)
	}
	r.members[roomKey][userID] = struct{}{}
}

// Leave removes a user from a room, dropping empty rooms entirely so the
// map does not leak over time.
func (r *Rooms) Leave(roomKey, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(roomKey, userID)
}

func (r *Rooms) leaveLocked(roomKey, userID string) {
	members, ok := r.members[roomKey]
	if !ok {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(r.members, roomKey)
	}
}

// LeaveAll removes a user from every room, used on disconnect.
func (r *Rooms) LeaveAll(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomKey := range r.members {
		r.leaveLocked(roomKey, userID)
	}
}

// Members returns the user ids currently in a room.
func (r *Rooms) Members(roomKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.members[roomKey]
	if !ok {
		return nil
	}
	return lo.Keys(members)
}

// Broadcast delivers an event to every connected member of a room, except
// optionally the sender. Membership is snapshotted under the lock; delivery
// happens outside it.
func (r *Rooms) Broadcast(ctx context.Context, roomKey string, e event.Event, exceptUserID string) {
	for _, userID := range r.Members(roomKey) {
		if userID == exceptUserID {
			continue
		}
		sink, _, ok := r.registry.Lookup(userID)
		if !ok {
			continue
		}
		_ = sink.Consume(ctx, e)
	}
}
