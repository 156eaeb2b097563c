package websocket

import (
	"sort"
	"sync"
)

// Presence maps live connection ids to the user they authenticated as,
// with a reverse index by user for fan-out. A user may hold many
// connections; a connection belongs to exactly one user.
//
// Mutations are issued by the Hub loop. The lock keeps read-only views
// used by REST handlers and the monitor safe.
type Presence struct {
	mu     sync.RWMutex
	byConn map[string]string
	byUser map[string]map[string]struct{}
}

type PresenceStats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

func NewPresence() *Presence {
	return &Presence{
		byConn: make(map[string]string),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Register records (userID, connID). It reports whether the registry
// changed; repeating an existing pair is a no-op. A connection that was
// registered under another user is moved.
func (p *Presence) Register(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.byConn[connID]; ok {
		if prev == userID {
			return false
		}
		p.removeLocked(connID)
	}
	p.byConn[connID] = userID
	conns, ok := p.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		p.byUser[userID] = conns
	}
	conns[connID] = struct{}{}
	return true
}

// Unregister drops every entry of connID and reports whether one existed.
func (p *Presence) Unregister(connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byConn[connID]; !ok {
		return false
	}
	p.removeLocked(connID)
	return true
}

func (p *Presence) removeLocked(connID string) {
	userID := p.byConn[connID]
	delete(p.byConn, connID)
	if conns, ok := p.byUser[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(p.byUser, userID)
		}
	}
}

// ConnectionsFor returns the sorted connection ids of userID, possibly empty.
func (p *Presence) ConnectionsFor(userID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := p.byUser[userID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// UserFor returns the user owning connID.
func (p *Presence) UserFor(connID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	userID, ok := p.byConn[connID]
	return userID, ok
}

func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.byUser[userID]) > 0
}

// ActiveUsers returns the sorted ids of users with at least one connection.
func (p *Presence) ActiveUsers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.byUser))
	for id := range p.byUser {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Presence) Stats() PresenceStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PresenceStats{Users: len(p.byUser), Connections: len(p.byConn)}
}
