// Package registry provides a process-safe map from connection
// identifiers to their owner actors, with automatic entry removal when
// an owner terminates.
//
// Registration spawns a lightweight watcher parked on the owner's Done
// channel; when the owner exits, every entry mapped to it is removed
// without any explicit deregistration. Explicit deregistration remains
// supported for graceful shutdown, and all operations are idempotent —
// removing an unknown id or owner is a no-op, never an error.
package registry

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/connkit/wsconn/conn"
)

// Errors returned by the registry.
var (
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("connection not found")

	// ErrAlreadyRegistered is returned when an id is registered to a
	// different owner. Re-registering the same owner under the same id
	// is a no-op.
	ErrAlreadyRegistered = errors.New("connection id already registered")
)

type entry struct {
	owner *conn.Owner
	stop  chan struct{}
}

// Registry maps connection ids to live owners.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*entry
	logger *slog.Logger
}

// New creates an empty registry. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  map[string]*entry{},
		logger: logger,
	}
}

// Register maps id to owner and starts watching the owner's liveness.
// Registering the same (id, owner) pair again is a no-op; registering
// an id held by a different owner fails.
func (r *Registry) Register(id string, owner *conn.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[id]; ok {
		if existing.owner == owner {
			return nil
		}
		return ErrAlreadyRegistered
	}

	e := &entry{owner: owner, stop: make(chan struct{})}
	r.conns[id] = e
	go func() {
		select {
		case <-owner.Done():
			r.logger.Debug("registry owner terminated", "conn_id", id)
			r.CleanupDead(owner)
		case <-e.stop:
		}
	}()
	return nil
}

// Get looks up the owner registered under id.
func (r *Registry) Get(id string) (*conn.Owner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.owner, nil
}

// Deregister removes the entry for id and stops its watcher.
// Deregistering an unknown id is a no-op.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return
	}
	close(e.stop)
	delete(r.conns, id)
}

// CleanupDead removes every entry mapped to the given owner. Cleaning
// up an owner with no entries is a no-op.
func (r *Registry) CleanupDead(owner *conn.Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.conns {
		if e.owner != owner {
			continue
		}
		close(e.stop)
		delete(r.conns, id)
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
