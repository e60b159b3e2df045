package dataset

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a session has no registered dataset.
// Callers turn this into a clarifying response, never a crash.
var ErrNotFound = errors.New("no dataset bound to session")

// Registry holds the single active in-memory dataset per session.
// Entries are replaced wholesale, never edited in place, so a
// concurrent reader sees either the prior or the new snapshot in full.
// Contents do not survive a process restart; durable state lives in
// the exchange store.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	ds      *Dataset
	summary *Summary
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Put binds a dataset to a session, computing and caching its summary.
// An existing dataset for the session is replaced.
func (r *Registry) Put(sessionID string, ds *Dataset) *Summary {
	sum := Summarize(ds)
	r.mu.Lock()
	r.entries[sessionID] = &entry{ds: ds, summary: sum}
	r.mu.Unlock()
	return sum
}

// Get returns the session's current dataset and cached summary, or
// ErrNotFound. The returned dataset must be treated as read-only;
// mutations go through Replace with a fresh Dataset.
func (r *Registry) Get(sessionID string) (*Dataset, *Summary, error) {
	r.mu.RLock()
	e, ok := r.entries[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	return e.ds, e.summary, nil
}

// Replace swaps in a new dataset for a session that already has one.
// This is the only mutation path for operation results; last writer
// wins under concurrent replacement of the same session.
func (r *Registry) Replace(sessionID string, ds *Dataset) (*Summary, error) {
	sum := Summarize(ds)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[sessionID]; !ok {
		return nil, ErrNotFound
	}
	r.entries[sessionID] = &entry{ds: ds, summary: sum}
	return sum, nil
}

// Drop removes the session's dataset, if any.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	delete(r.entries, sessionID)
	r.mu.Unlock()
}
