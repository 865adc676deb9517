package server

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskmaster/backend"
)

var (
	// ErrNotFound is returned for an unknown task id.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidID is returned for an id that is not a UUID.
	ErrInvalidID = errors.New("invalid task ID format")
)

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Category  string
	Priority  string
	Completed *bool
	Limit     int
}

// Store is an in-memory task collection keyed by id.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]backend.RemoteTask
	now   func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		tasks: make(map[string]backend.RemoteTask),
		now:   time.Now,
	}
}

// SetClock overrides the clock used for createdAt/updatedAt stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) stamp() string {
	return backend.FormatTimestamp(s.now())
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// List returns matching tasks, newest createdAt first, at most f.Limit of them.
func (s *Store) List(f Filter) []backend.RemoteTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]backend.RemoteTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.Completed != nil && t.Completed != *f.Completed {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// All returns every task in List order.
func (s *Store) All() []backend.RemoteTask {
	return s.List(Filter{})
}

// Get returns task id.
func (s *Store) Get(id string) (backend.RemoteTask, error) {
	if !validID(id) {
		return backend.RemoteTask{}, ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return backend.RemoteTask{}, ErrNotFound
	}
	return t, nil
}

// Create stores a new, incomplete task and returns it with its id.
func (s *Store) Create(in backend.RemoteTaskInput) backend.RemoteTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	t := backend.RemoteTask{
		ID:             uuid.New().String(),
		Title:          in.Title,
		DueDate:        in.DueDate,
		Priority:       in.Priority,
		Category:       in.Category,
		CreatedAt:      now,
		UpdatedAt:      &now,
		NotificationID: in.NotificationID,
	}
	s.tasks[t.ID] = t
	return t
}

// Update applies the non-nil fields of u to task id.
func (s *Store) Update(id string, u backend.TaskUpdate) (backend.RemoteTask, error) {
	if !validID(id) {
		return backend.RemoteTask{}, ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return backend.RemoteTask{}, ErrNotFound
	}
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.DueDate != nil {
		t.DueDate = *u.DueDate
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Category != nil {
		t.Category = *u.Category
	}
	if u.Completed != nil {
		t.Completed = *u.Completed
	}
	if u.NotificationID != nil {
		t.NotificationID = u.NotificationID
	}
	now := s.stamp()
	t.UpdatedAt = &now
	s.tasks[id] = t
	return t, nil
}

// Delete removes task id.
func (s *Store) Delete(id string) error {
	if !validID(id) {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// Replace swaps the whole collection for tasks. Ids that are not UUIDs, or
// repeat an earlier id, are replaced with fresh ones. Every task gets
// updatedAt set to the returned sync time.
func (s *Store) Replace(tasks []backend.RemoteTask) ([]backend.RemoteTask, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	s.tasks = make(map[string]backend.RemoteTask, len(tasks))
	out := make([]backend.RemoteTask, 0, len(tasks))
	for _, t := range tasks {
		if _, dup := s.tasks[t.ID]; dup || !validID(t.ID) {
			t.ID = uuid.New().String()
		}
		if t.CreatedAt == "" {
			t.CreatedAt = now
		}
		updated := now
		t.UpdatedAt = &updated
		s.tasks[t.ID] = t
		out = append(out, t)
	}
	return out, now
}
