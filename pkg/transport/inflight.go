package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks in-flight async jobs for explicit cancellation.
// It maps job IDs to their cancel functions, allowing a DELETE request to
// cancel a job that is still running.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]context.CancelFunc),
	}
}

// Register adds an in-flight job to the registry. The cancel function will
// be called if the job is explicitly cancelled.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = cancel
}

// TryRegister adds an in-flight job only if fewer than limit jobs are
// registered and the ID is not already in flight. The check and the
// registration happen under one lock, so concurrent admissions cannot
// exceed the limit. Returns false when the job was not admitted.
func (r *InFlightRegistry) TryRegister(id string, cancel context.CancelFunc, limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= limit {
		return false
	}
	if _, exists := r.entries[id]; exists {
		return false
	}
	r.entries[id] = cancel
	return true
}

// Cancel cancels an in-flight job by calling its cancel function. Returns
// true if the job was found and cancelled, false if the ID was not
// registered (either already completed or never existed).
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[id]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, id)
	return true
}

// Remove removes a job from the registry without cancelling it. Called
// when a job completes normally.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len reports the number of registered in-flight jobs.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
