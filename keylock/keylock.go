// Package keylock provides on-demand per-key mutexes. The sync core uses one
// shared Map to serialize every mutating operation on a single entity id:
// reaction toggles hold exactly one key, write-through batch upserts hold a
// sorted set of keys.
package keylock

import (
	"sort"
	"sync"
)

// Map is a set of mutexes created on demand, one per key. Entries are
// reference counted and removed once the last holder unlocks, so the table
// stays bounded by the number of concurrently locked keys.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewMap returns an empty lock map.
func NewMap() *Map {
	return &Map{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (m *Map) Lock(key string) func() {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// LockAll acquires the mutexes for every distinct key in keys, in sorted
// order, and returns a single unlock function. Acquiring in sorted order
// keeps multi-key holders deadlock-free against each other; single-key
// holders cannot form a cycle.
func (m *Map) LockAll(keys []string) func() {
	distinct := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		distinct = append(distinct, k)
	}
	sort.Strings(distinct)

	unlocks := make([]func(), 0, len(distinct))
	for _, k := range distinct {
		unlocks = append(unlocks, m.Lock(k))
	}

	return func() {
		// Release in reverse acquisition order.
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// Len reports the number of keys currently held or awaited. Intended for
// tests and stats.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
