// Package relay routes application messages between logical identities over
// live connections. It owns the presence registry, the observer set, the
// authenticated chat router, and the anonymous signaling relay.
package relay

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrConnClosed is returned by Conn.Send once the connection is no longer
// writable.
var ErrConnClosed = errors.New("connection closed")

// Conn is a live transport connection able to receive encoded frames.
// IDs are unique among concurrently open connections.
type Conn interface {
	ID() string
	Send(frame []byte) error
}

// SupersedeFunc is invoked after a claim displaced another connection's hold
// on identity. It runs outside the registry lock.
type SupersedeFunc func(identity string, displaced Conn)

// Registry is the bidirectional identity <-> connection index. Every
// mutation runs under one lock so both directions always agree.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]Conn
	byConn     map[string]string

	onSupersede SupersedeFunc
}

// NewRegistry creates an empty Registry. onSupersede may be nil.
func NewRegistry(onSupersede SupersedeFunc) *Registry {
	return &Registry{
		byIdentity:  make(map[string]Conn),
		byConn:      make(map[string]string),
		onSupersede: onSupersede,
	}
}

// Claim binds identity to c. A previous connection holding identity loses it
// (last claim wins), and any other identity previously held by c is dropped.
func (r *Registry) Claim(identity string, c Conn) {
	var displaced Conn

	r.mu.Lock()
	if old, ok := r.byIdentity[identity]; ok && old.ID() != c.ID() {
		delete(r.byConn, old.ID())
		displaced = old
	}
	if prev, ok := r.byConn[c.ID()]; ok && prev != identity {
		if holder, ok := r.byIdentity[prev]; ok && holder.ID() == c.ID() {
			delete(r.byIdentity, prev)
		}
	}
	r.byIdentity[identity] = c
	r.byConn[c.ID()] = identity
	r.mu.Unlock()

	if displaced != nil && r.onSupersede != nil {
		r.onSupersede(identity, displaced)
	}
}

// Release removes c from both directions and returns the identity it held.
// Releasing an unclaimed or already released connection is a no-op.
func (r *Registry) Release(c Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byConn[c.ID()]
	if !ok {
		return "", false
	}
	delete(r.byConn, c.ID())
	if holder, ok := r.byIdentity[identity]; ok && holder.ID() == c.ID() {
		delete(r.byIdentity, identity)
	}
	return identity, true
}

// Resolve returns the connection currently bound to identity.
func (r *Registry) Resolve(identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byIdentity[identity]
	return c, ok
}

// IdentityOf returns the identity claimed by c, if any.
func (r *Registry) IdentityOf(c Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byConn[c.ID()]
	return identity, ok
}

// IsOnline reports whether identity is bound to a connection.
func (r *Registry) IsOnline(identity string) bool {
	_, ok := r.Resolve(identity)
	return ok
}

// Len returns the number of bound identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
