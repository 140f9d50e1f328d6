package storage

import (
	"sync"
)

// Service is a shared storage connection that becomes ready exactly once.
type Service[D any] interface {
	// Connected reports whether the connection is ready.
	Connected() bool
	// DB returns the database handle and true once the connection is ready.
	DB() (D, bool)
	// Ready returns a channel closed when the connection becomes ready.
	// The channel is already closed for callers arriving after readiness.
	Ready() <-chan struct{}
}

// Readiness is a one-shot future holding a database handle.
type Readiness[D any] struct {
	mu    sync.Mutex
	db    D
	ready chan struct{}
	done  bool
}

// NewReadiness returns an unresolved Readiness.
func NewReadiness[D any]() *Readiness[D] {
	return &Readiness[D]{ready: make(chan struct{})}
}

// Resolve stores db and releases every subscriber. Only the first call has any
// effect; it returns false for later calls.
func (r *Readiness[D]) Resolve(db D) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return false
	}
	r.db = db
	r.done = true
	close(r.ready)
	return true
}

// Connected reports whether Resolve has been called.
func (r *Readiness[D]) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// DB returns the connected handle, or the zero value and false before Resolve.
func (r *Readiness[D]) DB() (D, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db, r.done
}

// Ready returns a channel closed by the first Resolve.
func (r *Readiness[D]) Ready() <-chan struct{} {
	return r.ready
}

var _ Service[struct{}] = (*Readiness[struct{}])(nil)
