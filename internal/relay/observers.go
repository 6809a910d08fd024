package relay

import "sync"

// ObserverSet holds the connections admitted to receive a mirror of every
// routed chat envelope. Membership is independent of identity.
type ObserverSet struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewObserverSet creates an empty set.
func NewObserverSet() *ObserverSet {
	return &ObserverSet{conns: make(map[string]Conn)}
}

// Add admits c. Adding a member again is a no-op.
func (o *ObserverSet) Add(c Conn) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conns[c.ID()] = c
}

// Remove drops c and reports whether it was a member.
func (o *ObserverSet) Remove(c Conn) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.conns[c.ID()]; !ok {
		return false
	}
	delete(o.conns, c.ID())
	return true
}

// Contains reports whether c is a member.
func (o *ObserverSet) Contains(c Conn) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.conns[c.ID()]
	return ok
}

// Snapshot returns the current members; sends happen outside the lock.
func (o *ObserverSet) Snapshot() []Conn {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]Conn, 0, len(o.conns))
	for _, c := range o.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of members.
func (o *ObserverSet) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.conns)
}
