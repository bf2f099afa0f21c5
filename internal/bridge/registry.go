package bridge

import "sync"

// Registry holds the live bridge handles, keyed by server id. The connection
// subsystem attaches a handle when a server's link comes up and detaches it
// on disconnect; a missing handle is the normal state for an offline server,
// not an error.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Bridge
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Bridge)}
}

// Attach registers (or replaces) the handle for a server.
func (r *Registry) Attach(serverID string, b Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[serverID] = b
}

// Detach removes the handle for a server.
func (r *Registry) Detach(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, serverID)
}

// Resolve returns the handle for a server, if one is attached.
func (r *Registry) Resolve(serverID string) (Bridge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.handles[serverID]
	return b, ok
}

// Reachable reports whether a server has an attached, reachable handle.
func (r *Registry) Reachable(serverID string) bool {
	b, ok := r.Resolve(serverID)
	return ok && b.IsReachable()
}
