package vendors

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry is the in-memory table of attached vendor connections, keyed by
// connection ID with a secondary index by service name. At most one
// connection per service name is admitted; a newer connection evicts the
// older one. Nothing here survives a process restart: reconnecting vendors
// renegotiate from scratch.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*Connection
	byService map[string]*Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[string]*Connection),
		byService: make(map[string]*Connection),
	}
}

// Admit registers a connection. When another connection holds the same
// service name it is returned as evicted; the caller must close it.
func (r *Registry) Admit(conn *Connection) (evicted *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byService[conn.ServiceName]; ok {
		delete(r.byID, old.ID)
		evicted = old
	}
	r.byID[conn.ID] = conn
	r.byService[conn.ServiceName] = conn

	log.Debug().
		Str("connection", conn.ID).
		Str("service", conn.ServiceName).
		Int("connected", len(r.byID)).
		Msg("Vendor connection admitted")
	return evicted
}

// Remove drops a connection from both indexes. The service index is only
// cleared when it still points at this exact connection, so an eviction
// followed by the old connection's teardown cannot unregister its
// replacement.
func (r *Registry) Remove(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byID, conn.ID)
	if current, ok := r.byService[conn.ServiceName]; ok && current.ID == conn.ID {
		delete(r.byService, conn.ServiceName)
	}

	log.Debug().
		Str("connection", conn.ID).
		Str("service", conn.ServiceName).
		Int("connected", len(r.byID)).
		Msg("Vendor connection removed")
}

// Get returns the connection with the given ID.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byID[id]
	return conn, ok
}

// ByService returns the connection currently holding the service name,
// regardless of its state.
func (r *Registry) ByService(name string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byService[name]
	return conn, ok
}

// Available returns the service's connection only if it has completed
// provisioning.
func (r *Registry) Available(name string) (*Connection, bool) {
	conn, ok := r.ByService(name)
	if !ok || conn.State() != StateAvailable {
		return nil, false
	}
	return conn, true
}

// List returns a snapshot of every attached connection.
func (r *Registry) List() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	return conns
}

// Count returns the number of attached connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
