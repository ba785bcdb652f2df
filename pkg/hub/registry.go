package hub

import "sync"

// Registry owns the set of live connections and the identity -> connections
// mapping. An identity may hold several simultaneous connections (multiple
// devices); presence flips offline only when the last one closes.
type Registry struct {
	mu     sync.RWMutex
	conns  map[ConnID]Conn
	byUser map[string]map[ConnID]Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[ConnID]Conn),
		byUser: make(map[string]map[ConnID]Conn),
	}
}

// Register adds a connection and reports whether it is the identity's first.
func (r *Registry) Register(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := c.Identity().UserID
	r.conns[c.ID()] = c
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[ConnID]Conn)
	}
	first := len(r.byUser[userID]) == 0
	r.byUser[userID][c.ID()] = c
	return first
}

// Deregister removes a connection and reports whether it was the identity's
// last. Unknown ids are a no-op, which makes disconnect paths idempotent.
func (r *Registry) Deregister(id ConnID) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)

	userID := c.Identity().UserID
	if peers, ok := r.byUser[userID]; ok {
		delete(peers, id)
		if len(peers) == 0 {
			delete(r.byUser, userID)
			return c, true
		}
	}
	return c, false
}

func (r *Registry) Lookup(id ConnID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// ConnectionsFor returns every live connection owned by the identity.
func (r *Registry) ConnectionsFor(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
