package runtime

import (
	"dm-lab/contract"
	"dm-lab/domain"
	"sync"
)

// Registry maps each online identity to its current connection.
// A single RWMutex guards the map: lookups share the read lock and
// register/unregister hold the write lock only for a map assignment.
type Registry struct {
	mu          sync.RWMutex
	connections map[domain.Identity]contract.Connection
}

func NewRegistry() *Registry {
	return &Registry{connections: make(map[domain.Identity]contract.Connection)}
}

// Register installs conn as the handle for identity.
// A previous handle is replaced without being closed: it simply stops being addressable.
func (r *Registry) Register(identity domain.Identity, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[identity] = conn
}

func (r *Registry) Lookup(identity domain.Identity) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[identity]
	return conn, ok
}

// Unregister removes the mapping only if it still points to conn.
// A late disconnect of a superseded connection must not evict its replacement.
func (r *Registry) Unregister(identity domain.Identity, conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.connections[identity]
	if !ok || current.ID() != conn.ID() {
		return false
	}
	delete(r.connections, identity)
	return true
}

func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Presences returns a snapshot of the online identities.
func (r *Registry) Presences() []domain.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	presences := make([]domain.Presence, 0, len(r.connections))
	for identity, conn := range r.connections {
		presence := domain.Presence{Identity: identity, ConnectionID: conn.ID()}
		if live, ok := conn.(interface{ Presence() domain.Presence }); ok {
			presence = live.Presence()
		}
		presences = append(presences, presence)
	}
	return presences
}
