package service

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks every live connection per user. Purely in-memory,
// rebuilt on process restart; presence derived from it is best-effort.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{}
	conns  map[string]Conn
	owner  map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: map[string]map[string]struct{}{},
		conns:  map[string]Conn{},
		owner:  map[string]string{},
	}
}

// Register adds a connection to the user's set and reports whether it is
// the user's first live connection.
func (r *Registry) Register(userID string, conn Conn) (connID string, first bool) {
	connID = uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[userID]
	if !ok {
		set = map[string]struct{}{}
		r.byUser[userID] = set
	}
	first = len(set) == 0
	set[connID] = struct{}{}
	r.conns[connID] = conn
	r.owner[connID] = userID
	return connID, first
}

// Unregister removes the connection and reports the owning user and
// whether the user's set is now empty. ok is false for unknown ids, which
// happens when a heartbeat expiry already swept the connection.
func (r *Registry) Unregister(connID string) (userID string, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok = r.owner[connID]
	if !ok {
		return "", false, false
	}
	delete(r.owner, connID)
	delete(r.conns, connID)
	if set, exists := r.byUser[userID]; exists {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, userID)
			last = true
		}
	}
	return userID, last, true
}

// Owner resolves the user a connection belongs to without removing it.
func (r *Registry) Owner(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.owner[connID]
	return userID, ok
}

func (r *Registry) Conn(connID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

func (r *Registry) ConnectionsFor(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.byUser[userID]))
	for connID := range r.byUser[userID] {
		conns = append(conns, r.conns[connID])
	}
	return conns
}

func (r *Registry) ConnectionIDsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byUser[userID]))
	for connID := range r.byUser[userID] {
		ids = append(ids, connID)
	}
	return ids
}

// AllConns snapshots every live connection, for the global presence
// broadcasts.
func (r *Registry) AllConns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}
