package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/cache"
)

// memPersistence is an in-memory backend.Persistence
type memPersistence struct {
	mu      sync.Mutex
	tasks   []backend.Task
	saves   int
	failErr error
	closed  bool
}

func (m *memPersistence) Load(ctx context.Context) ([]backend.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	return backend.Clone(m.tasks), nil
}

func (m *memPersistence) Save(ctx context.Context, tasks []backend.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failErr != nil {
		return m.failErr
	}
	m.tasks = backend.Clone(tasks)
	return nil
}

func (m *memPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memPersistence) stored() []backend.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return backend.Clone(m.tasks)
}

func task(id, title string) backend.Task {
	return backend.Task{
		ID:        id,
		Title:     title,
		DueDate:   time.Date(2026, 2, 1, 9, 0, 0, 0, time.Local),
		Priority:  backend.PriorityMedium,
		Category:  backend.CategoryWork,
		CreatedAt: time.Date(2026, 1, 1, 8, 0, 0, 0, time.Local),
	}
}

func ids(tasks []backend.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStoreInsertionOrder(t *testing.T) {
	s := cache.New(nil)
	s.Upsert(task("a", "A"))
	s.Upsert(task("b", "B"))
	s.Upsert(task("c", "C"))

	updated := task("b", "B2")
	s.Upsert(updated)

	got := s.Get()
	if !equalIDs(ids(got), []string{"a", "b", "c"}) {
		t.Fatalf("order = %v", ids(got))
	}
	if got[1].Title != "B2" {
		t.Errorf("upsert should replace in place, got %q", got[1].Title)
	}

	if _, ok := s.Remove("b"); !ok {
		t.Fatal("Remove(b) should succeed")
	}
	if _, ok := s.Remove("b"); ok {
		t.Error("second Remove(b) should report missing")
	}
	if !equalIDs(ids(s.Get()), []string{"a", "c"}) {
		t.Errorf("order after remove = %v", ids(s.Get()))
	}
	if _, ok := s.Lookup("c"); !ok {
		t.Error("Lookup(c) after remove should still work")
	}
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s := cache.New(nil)
	s.Upsert(task("a", "A"))

	got := s.Get()
	got[0].Title = "mutated"
	if t2, _ := s.Lookup("a"); t2.Title != "A" {
		t.Error("Get must not expose internal state")
	}
	if cache.New(nil).Get() == nil {
		t.Error("Get on empty store should return an empty slice")
	}
}

func TestReplaceAllDropsDuplicateIDs(t *testing.T) {
	s := cache.New(nil)
	s.Upsert(task("old", "Old"))

	first := task("x", "first")
	second := task("x", "second")
	s.ReplaceAll([]backend.Task{first, task("y", "Y"), second})

	got := s.Get()
	if !equalIDs(ids(got), []string{"x", "y"}) {
		t.Fatalf("ids = %v", ids(got))
	}
	if got[0].Title != "first" {
		t.Errorf("duplicate should keep first occurrence, got %q", got[0].Title)
	}
}

func TestExclusiveRekey(t *testing.T) {
	s := cache.New(nil)
	s.Upsert(task("local", "L"))
	s.Upsert(task("other", "O"))

	_ = s.Exclusive(func(tx *cache.Tx) error {
		if !tx.Rekey("local", "remote") {
			t.Error("Rekey should succeed")
		}
		if tx.Rekey("remote", "other") {
			t.Error("Rekey onto a taken id should fail")
		}
		if tx.Rekey("missing", "new") {
			t.Error("Rekey of unknown id should fail")
		}
		return nil
	})

	if !equalIDs(ids(s.Get()), []string{"remote", "other"}) {
		t.Errorf("ids = %v", ids(s.Get()))
	}
}

func TestExclusiveSerializesWriters(t *testing.T) {
	s := cache.New(nil)
	s.Upsert(backend.Task{ID: "counter", Title: "0"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Exclusive(func(tx *cache.Tx) error {
				cur, _ := tx.Lookup("counter")
				cur.Title += "+"
				tx.Upsert(cur)
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := s.Lookup("counter")
	if len(got.Title) != 51 {
		t.Errorf("lost updates: title has %d chars, want 51", len(got.Title))
	}
}

func TestExclusiveReturnsError(t *testing.T) {
	s := cache.New(nil)
	want := errors.New("boom")
	if err := s.Exclusive(func(tx *cache.Tx) error { return want }); !errors.Is(err, want) {
		t.Errorf("Exclusive error = %v, want %v", err, want)
	}
}

func TestStorePersistsAfterMutation(t *testing.T) {
	p := &memPersistence{}
	s := cache.New(p)
	ctx := context.Background()

	s.Upsert(task("a", "A"))
	s.Upsert(task("b", "B"))
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !equalIDs(ids(p.stored()), []string{"a", "b"}) {
		t.Errorf("persisted ids = %v", ids(p.stored()))
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p.closed {
		t.Error("Close should close the persistence")
	}
}

func TestStoreLoadRestores(t *testing.T) {
	p := &memPersistence{tasks: []backend.Task{task("a", "A"), task("b", "B")}}
	s := cache.New(p)
	defer func() { _ = s.Close(context.Background()) }()

	n, err := s.Load(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("Load = %d, %v", n, err)
	}
	if !equalIDs(ids(s.Get()), []string{"a", "b"}) {
		t.Errorf("ids = %v", ids(s.Get()))
	}
}

func TestStoreSaveFailureKeepsMemoryState(t *testing.T) {
	p := &memPersistence{failErr: errors.New("disk full")}
	s := cache.New(p)
	defer func() { _ = s.Close(context.Background()) }()

	s.Upsert(task("a", "A"))
	err := s.Flush(context.Background())
	if err == nil {
		t.Fatal("Flush should report the failed save")
	}
	if _, ok := s.Lookup("a"); !ok {
		t.Error("in-memory state must survive a failed save")
	}
}

func TestStoreLoadFailureLeavesStoreUntouched(t *testing.T) {
	p := &memPersistence{failErr: errors.New("corrupt")}
	s := cache.New(p)
	defer func() { _ = s.Close(context.Background()) }()

	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if s.Len() != 0 {
		t.Errorf("store should stay empty, has %d", s.Len())
	}
}
