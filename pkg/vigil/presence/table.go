package presence

import (
	"sync"
)

// Table is the authoritative per-subject state store. Every subject in
// the current subscription set has exactly one entry; subjects that
// were never queried are simply absent.
type Table struct {
	mu       sync.RWMutex
	subjects map[string]*State
}

// NewTable creates an empty state table.
func NewTable() *Table {
	return &Table{
		subjects: make(map[string]*State),
	}
}

// Put stores the state for a subject, replacing any previous entry.
func (t *Table) Put(id string, state *State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subjects[id] = state
}

// Get returns the state for a subject, if it is tracked.
func (t *Table) Get(id string) (*State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.subjects[id]
	return state, ok
}

// Prune removes every subject not in keep and returns the removed ids.
func (t *Table) Prune(keep map[string]struct{}) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []string
	for id := range t.subjects {
		if _, ok := keep[id]; !ok {
			delete(t.subjects, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Len returns the number of tracked subjects.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subjects)
}

// IDs returns the tracked subject ids in no particular order.
func (t *Table) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.subjects))
	for id := range t.subjects {
		ids = append(ids, id)
	}
	return ids
}
