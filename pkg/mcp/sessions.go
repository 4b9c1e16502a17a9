package mcp

import (
	"slices"
	"sync"
)

// ClientRegistry tracks the MCP client sessions that receive session events.
// A client is registered the first time it calls any tool.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]struct{}
}

// NewClientRegistry creates an empty ClientRegistry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]struct{})}
}

// Register adds a client session. Registering twice is a no-op.
func (r *ClientRegistry) Register(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[sessionID] = struct{}{}
}

// Remove forgets a client session.
func (r *ClientRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, sessionID)
}

// Clients returns the registered session IDs, sorted.
func (r *ClientRegistry) Clients() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
