package relay

import (
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	rerr "chatrelay/internal/errors"
)

// Registry is the set of connections eligible for broadcast, keyed by
// identity.  Every method holds the lock for a single operation only;
// callers iterate over the copy returned by Snapshot.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn
	max   int // 0 = unlimited
}

// NewRegistry returns an empty registry.  max caps the number of
// members; 0 disables the cap.
func NewRegistry(max int) *Registry {
	return &Registry{
		conns: make(map[uuid.UUID]*Conn),
		max:   max,
	}
}

// Register adds c.  Registering the same identity twice is a no-op.
// It fails with ErrConnClosed for a connection that is already closed
// and with ErrRegistryFull when the cap is reached.
func (r *Registry) Register(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID()]; ok {
		return nil
	}
	if !c.Active() {
		return rerr.ErrConnClosed
	}
	if r.max > 0 && len(r.conns) >= r.max {
		return rerr.ErrRegistryFull
	}
	r.conns[c.ID()] = c
	return nil
}

// Unregister removes c and reports whether it was present.  Removing
// an absent identity is a silent no-op.
func (r *Registry) Unregister(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID()]; !ok {
		return false
	}
	delete(r.conns, c.ID())
	return true
}

// Contains reports whether the identity of c is registered.
func (r *Registry) Contains(c *Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[c.ID()]
	return ok
}

// Snapshot returns the Active members at this instant.  The slice is
// owned by the caller and stays valid while the registry changes.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	conns := lo.Values(r.conns)
	r.mu.RUnlock()

	return lo.Filter(conns, func(c *Conn, _ int) bool {
		return c.Active()
	})
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every registered connection.  Each owning Handler
// then observes the closed transport and unregisters itself.
func (r *Registry) CloseAll() {
	for _, c := range r.Snapshot() {
		c.Close() //nolint:errcheck
	}
}
