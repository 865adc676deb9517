// Package cache holds the canonical task collection and writes it behind
// the scenes to a backend.Persistence.
package cache

import (
	"context"
	"sync"

	"taskmaster/backend"
	"taskmaster/internal/utils"
)

// Store owns the task collection in insertion order.
// The in-memory state is authoritative; persistence happens asynchronously
// after every mutation and its failures are only logged.
type Store struct {
	persist backend.Persistence

	writeMu sync.Mutex   // one writer at a time, held across read-modify-write
	mu      sync.RWMutex // guards tasks and index
	tasks   []backend.Task
	index   map[string]int

	saveMu  sync.Mutex
	version uint64
	saved   uint64
	saveErr error
	notify  chan struct{}
	dirty   chan struct{}
	stop    chan struct{}
	done    chan struct{}
	stopped sync.Once
	closed  bool
}

// New creates a Store writing through p. A nil p keeps the store in memory only.
func New(p backend.Persistence) *Store {
	s := &Store{
		persist: p,
		index:   make(map[string]int),
		notify:  make(chan struct{}),
		dirty:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if p != nil {
		go s.saver()
	} else {
		close(s.done)
	}
	return s
}

// Load restores the persisted collection, replacing the in-memory one.
// On failure the store keeps its current state and the error is returned
// for the caller to log.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.persist == nil {
		return 0, nil
	}
	tasks, err := s.persist.Load(ctx)
	if err != nil {
		return 0, utils.ErrPersistenceFailed("load", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.setLocked(tasks)
	n := len(s.tasks)
	s.mu.Unlock()
	return n, nil
}

// Get returns a copy of the collection in insertion order.
func (s *Store) Get() []backend.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := backend.Clone(s.tasks)
	if out == nil {
		out = []backend.Task{}
	}
	return out
}

// Snapshot is the read-only accessor handed to statistics and views.
func (s *Store) Snapshot() []backend.Task {
	return s.Get()
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Lookup returns the task with id.
func (s *Store) Lookup(id string) (backend.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(id)
}

// Upsert replaces the task with the same id in place, or appends it.
func (s *Store) Upsert(t backend.Task) {
	_ = s.Exclusive(func(tx *Tx) error {
		tx.Upsert(t)
		return nil
	})
}

// Remove deletes the task with id and returns it.
func (s *Store) Remove(id string) (backend.Task, bool) {
	var removed backend.Task
	var ok bool
	_ = s.Exclusive(func(tx *Tx) error {
		removed, ok = tx.Remove(id)
		return nil
	})
	return removed, ok
}

// ReplaceAll swaps in a whole new collection. Duplicate ids keep their first occurrence.
func (s *Store) ReplaceAll(tasks []backend.Task) {
	_ = s.Exclusive(func(tx *Tx) error {
		tx.ReplaceAll(tasks)
		return nil
	})
}

// Exclusive runs fn as the only writer. Readers are not blocked except
// for the instant each Tx mutation is applied. fn must not call the
// Store's own mutating methods, and must not block on I/O.
func (s *Store) Exclusive(fn func(tx *Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx := &Tx{s: s}
	err := fn(tx)
	if tx.changed {
		s.markDirty()
	}
	return err
}

// Tx is the view of the store handed to an Exclusive section.
type Tx struct {
	s       *Store
	changed bool
}

// Get returns a copy of the collection.
func (tx *Tx) Get() []backend.Task {
	return tx.s.Get()
}

// Lookup returns the task with id.
func (tx *Tx) Lookup(id string) (backend.Task, bool) {
	return tx.s.Lookup(id)
}

// Upsert replaces the task with the same id in place, or appends it.
func (tx *Tx) Upsert(t backend.Task) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t = backend.Clone([]backend.Task{t})[0]
	if i, ok := s.index[t.ID]; ok {
		s.tasks[i] = t
	} else {
		s.index[t.ID] = len(s.tasks)
		s.tasks = append(s.tasks, t)
	}
	tx.changed = true
}

// Remove deletes the task with id and returns it.
func (tx *Tx) Remove(id string) (backend.Task, bool) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return backend.Task{}, false
	}
	removed := s.tasks[i]
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	s.reindexLocked()
	tx.changed = true
	return removed, true
}

// ReplaceAll swaps in a whole new collection. Duplicate ids keep their first occurrence.
func (tx *Tx) ReplaceAll(tasks []backend.Task) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(tasks)
	tx.changed = true
}

// Rekey renames a task, keeping its position. It fails when oldID is
// unknown or newID is already taken.
func (tx *Tx) Rekey(oldID, newID string) bool {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[oldID]
	if !ok {
		return false
	}
	if _, taken := s.index[newID]; taken {
		return false
	}
	s.tasks[i].ID = newID
	delete(s.index, oldID)
	s.index[newID] = i
	tx.changed = true
	return true
}

func (s *Store) lookupLocked(id string) (backend.Task, bool) {
	i, ok := s.index[id]
	if !ok {
		return backend.Task{}, false
	}
	return backend.Clone(s.tasks[i : i+1])[0], true
}

func (s *Store) setLocked(tasks []backend.Task) {
	s.tasks = make([]backend.Task, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))
	for _, t := range backend.Clone(tasks) {
		if seen[t.ID] {
			utils.Debugf("Dropping duplicate task id %s", t.ID)
			continue
		}
		seen[t.ID] = true
		s.tasks = append(s.tasks, t)
	}
	s.reindexLocked()
}

func (s *Store) reindexLocked() {
	s.index = make(map[string]int, len(s.tasks))
	for i, t := range s.tasks {
		s.index[t.ID] = i
	}
}
