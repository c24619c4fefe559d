// Package memory provides an in-memory implementation of transport.JobStore
// for testing and single-instance deployments. Jobs are stored in memory
// and lost when the process restarts. Optional LRU eviction limits memory
// usage from accumulated job results.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/akessl/schleuse/pkg/storage"
	"github.com/akessl/schleuse/pkg/transport"
)

// entry holds a stored job and its position in the eviction order.
type entry struct {
	rec     *transport.JobRecord
	lruElem *list.Element
}

// Store is an in-memory JobStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

// Ensure Store implements transport.JobStore at compile time.
var _ transport.JobStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently touched job is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// CreateJob records a new job.
func (s *Store) CreateJob(_ context.Context, rec *transport.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rec.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if stored.Status == "" {
		stored.Status = transport.JobStatusInQueue
	}

	elem := s.lruList.PushFront(rec.ID)
	s.entries[rec.ID] = &entry{rec: &stored, lruElem: elem}
	return nil
}

// AppendBatch adds one output batch to a job.
func (s *Store) AppendBatch(_ context.Context, id string, batch any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return storage.ErrNotFound
	}
	e.rec.Batches = append(e.rec.Batches, batch)
	s.lruList.MoveToFront(e.lruElem)
	return nil
}

// SetStatus transitions a job's lifecycle state.
func (s *Store) SetStatus(_ context.Context, id string, status transport.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return storage.ErrNotFound
	}
	e.rec.Status = status
	if status == transport.JobStatusFailed {
		e.rec.Error = errMsg
	}
	switch status {
	case transport.JobStatusCompleted, transport.JobStatusFailed, transport.JobStatusCancelled:
		now := time.Now()
		e.rec.CompletedAt = &now
	}
	s.lruList.MoveToFront(e.lruElem)
	return nil
}

// GetJob retrieves a job by ID. The returned record is a snapshot; the
// batches slice is copied so concurrent appends don't race with readers.
func (s *Store) GetJob(_ context.Context, id string) (*transport.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	snap := *e.rec
	snap.Batches = make([]any, len(e.rec.Batches))
	copy(snap.Batches, e.rec.Batches)
	return &snap, nil
}

// DeleteJob removes a job and its stored output.
func (s *Store) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len reports the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}

	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
