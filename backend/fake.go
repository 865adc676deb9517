package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrFakeRemoteDown is returned by FakeRemote while it is marked down.
var ErrFakeRemoteDown = errors.New("connection refused")

// FakeRemote is an in-memory RemoteStore for tests. It assigns ids
// "remote-1", "remote-2"... and can be switched down to simulate outages.
type FakeRemote struct {
	mu      sync.Mutex
	tasks   []RemoteTask
	next    int
	down    bool
	calls   map[string]int
	updates map[string][]TaskUpdate

	// Hook, when set, runs at the start of every call with the operation name.
	Hook func(op string)
}

// NewFakeRemote creates a FakeRemote holding tasks.
func NewFakeRemote(tasks ...RemoteTask) *FakeRemote {
	return &FakeRemote{
		tasks:   append([]RemoteTask(nil), tasks...),
		calls:   make(map[string]int),
		updates: make(map[string][]TaskUpdate),
	}
}

// SetDown makes every following call fail (true) or succeed (false).
func (f *FakeRemote) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// SetTasks replaces the remote snapshot.
func (f *FakeRemote) SetTasks(tasks ...RemoteTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append([]RemoteTask(nil), tasks...)
}

// Tasks returns a copy of the remote snapshot.
func (f *FakeRemote) Tasks() []RemoteTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RemoteTask(nil), f.tasks...)
}

// Calls returns how often op ("fetch", "create", "update", "delete") was called.
func (f *FakeRemote) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Updates returns the updates received for id.
func (f *FakeRemote) Updates(id string) []TaskUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TaskUpdate(nil), f.updates[id]...)
}

func (f *FakeRemote) enter(op string) error {
	if f.Hook != nil {
		f.Hook(op)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.down {
		return ErrFakeRemoteDown
	}
	return nil
}

func (f *FakeRemote) FetchAll(ctx context.Context) ([]RemoteTask, error) {
	if err := f.enter("fetch"); err != nil {
		return nil, err
	}
	return f.Tasks(), nil
}

func (f *FakeRemote) Create(ctx context.Context, in RemoteTaskInput) (*RemoteTask, error) {
	if err := f.enter("create"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	rt := RemoteTask{
		ID:             fmt.Sprintf("remote-%d", f.next),
		Title:          in.Title,
		DueDate:        in.DueDate,
		Priority:       in.Priority,
		Category:       in.Category,
		CreatedAt:      FormatTimestamp(time.Now()),
		NotificationID: in.NotificationID,
	}
	f.tasks = append([]RemoteTask{rt}, f.tasks...)
	return &rt, nil
}

func (f *FakeRemote) Update(ctx context.Context, id string, fields TaskUpdate) error {
	if err := f.enter("update"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID != id {
			continue
		}
		f.updates[id] = append(f.updates[id], fields)
		if fields.Completed != nil {
			f.tasks[i].Completed = *fields.Completed
		}
		if fields.Title != nil {
			f.tasks[i].Title = *fields.Title
		}
		return nil
	}
	return fmt.Errorf("task %s not found", id)
}

func (f *FakeRemote) Delete(ctx context.Context, id string) error {
	if err := f.enter("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			break
		}
	}
	return nil
}
