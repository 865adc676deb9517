package manager_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/cache"
	"taskmaster/internal/manager"
	"taskmaster/internal/reminder"
	"taskmaster/internal/utils"
)

var now = time.Date(2026, 1, 10, 12, 0, 0, 0, time.Local)

type fixture struct {
	store   *cache.Store
	alerter *reminder.FakeAlerter
	remote  *backend.FakeRemote
	mgr     *manager.Manager
}

func newFixture() *fixture {
	f := &fixture{
		store:   cache.New(nil),
		alerter: reminder.NewFakeAlerter(),
		remote:  backend.NewFakeRemote(),
	}
	reminders := reminder.NewScheduler(f.alerter, time.Hour)
	reminders.SetClock(func() time.Time { return now })
	f.mgr = manager.New(f.store, reminders, f.remote, manager.Options{
		ConnectivityTimeout: time.Second,
		Now:                 func() time.Time { return now },
	})
	return f
}

func (f *fixture) assertNoOrphans(t *testing.T) {
	t.Helper()
	if f.alerter.Scheduled() != f.alerter.Cancelled()+f.alerter.Pending()+f.alerter.Fired() {
		t.Errorf("arm/release accounting broken: scheduled=%d cancelled=%d pending=%d fired=%d",
			f.alerter.Scheduled(), f.alerter.Cancelled(), f.alerter.Pending(), f.alerter.Fired())
	}
	held := 0
	for _, task := range f.store.Get() {
		if task.ReminderHandle == "" {
			continue
		}
		held++
		if task.Completed {
			t.Errorf("completed task %s holds handle %s", task.ID, task.ReminderHandle)
		}
	}
	if held != f.alerter.Pending() {
		t.Errorf("%d handles held by tasks but %d alerts pending", held, f.alerter.Pending())
	}
}

func payRent() manager.Input {
	return manager.Input{
		Title:    "Pay rent",
		DueDate:  time.Date(2026, 1, 11, 9, 0, 0, 0, time.Local),
		Priority: backend.PriorityHigh,
		Category: backend.CategoryPersonal,
	}
}

func TestPayRentLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	task, err := f.mgr.CreateTask(ctx, payRent())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ReminderHandle == "" {
		t.Fatal("expected a reminder to be armed")
	}
	fireAt, ok := f.alerter.FireAt(task.ReminderHandle)
	if !ok || !fireAt.Equal(time.Date(2026, 1, 11, 8, 0, 0, 0, time.Local)) {
		t.Errorf("reminder fires at %v, want tomorrow 08:00", fireAt)
	}

	f.mgr.Wait()
	tasks := f.store.Get()
	if len(tasks) != 1 || tasks[0].Title != "Pay rent" {
		t.Fatalf("expected exactly one Pay rent task, got %+v", tasks)
	}
	if tasks[0].ID != "remote-1" {
		t.Errorf("task should have adopted the remote id, got %s", tasks[0].ID)
	}
	if tasks[0].ReminderHandle != task.ReminderHandle {
		t.Errorf("reminder should survive the id change: %s vs %s", tasks[0].ReminderHandle, task.ReminderHandle)
	}
	f.assertNoOrphans(t)

	done, err := f.mgr.ToggleCompleted(ctx, "remote-1")
	if err != nil {
		t.Fatalf("ToggleCompleted: %v", err)
	}
	if !done.Completed || done.ReminderHandle != "" {
		t.Errorf("completed task should hold no reminder: %+v", done)
	}
	if f.alerter.Pending() != 0 {
		t.Errorf("reminder not released, %d pending", f.alerter.Pending())
	}
	f.mgr.Wait()
	if got, ok := f.store.Lookup("remote-1"); !ok || !got.Completed {
		t.Errorf("task should still be present and completed after sync: %+v", got)
	}
	if ups := f.remote.Updates("remote-1"); len(ups) != 1 || ups[0].Completed == nil || !*ups[0].Completed {
		t.Errorf("unexpected remote updates: %+v", ups)
	}

	if err := f.mgr.DeleteTask(ctx, "remote-1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	f.mgr.Wait()
	if f.store.Len() != 0 {
		t.Errorf("store should be empty, got %+v", f.store.Get())
	}
	if _, ok := f.alerter.FireAt(task.ReminderHandle); ok {
		t.Error("no handle should remain armed")
	}
	if len(f.remote.Tasks()) != 0 {
		t.Error("remote delete was not issued")
	}
	f.assertNoOrphans(t)
}

func TestRemoteDownKeepsLocalState(t *testing.T) {
	f := newFixture()
	f.remote.SetDown(true)
	ctx := context.Background()

	task, err := f.mgr.CreateTask(ctx, payRent())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	f.mgr.Wait()
	if _, ok := f.store.Lookup(task.ID); !ok {
		t.Fatal("task should stay under its local id")
	}
	if f.remote.Calls("fetch") != 0 {
		t.Error("no sync should follow a failed remote write")
	}

	if _, err := f.mgr.ToggleCompleted(ctx, task.ID); err != nil {
		t.Fatalf("ToggleCompleted: %v", err)
	}
	if err := f.mgr.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask should succeed while the remote is down: %v", err)
	}
	f.mgr.Wait()
	if f.store.Len() != 0 {
		t.Error("local removal must not depend on the remote")
	}
	if f.remote.Calls("delete") != 1 {
		t.Errorf("remote delete attempts = %d, want 1", f.remote.Calls("delete"))
	}
	f.assertNoOrphans(t)
}

func TestCreateTaskValidation(t *testing.T) {
	due := now.Add(24 * time.Hour)
	tests := []struct {
		name string
		in   manager.Input
	}{
		{"empty title", manager.Input{DueDate: due}},
		{"blank title", manager.Input{Title: "   ", DueDate: due}},
		{"no due date", manager.Input{Title: "Read"}},
		{"bad priority", manager.Input{Title: "Read", DueDate: due, Priority: "urgent"}},
		{"bad category", manager.Input{Title: "Read", DueDate: due, Category: "errands"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.mgr.CreateTask(context.Background(), tt.in)
			if !errors.Is(err, utils.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			f.mgr.Wait()
			if f.store.Len() != 0 || f.alerter.Scheduled() != 0 || f.remote.Calls("create") != 0 {
				t.Error("rejected input must not change anything")
			}
		})
	}
}

func TestCreateTaskDefaultsAndPastDue(t *testing.T) {
	f := newFixture()
	f.remote.SetDown(true)

	task, err := f.mgr.CreateTask(context.Background(), manager.Input{Title: "  Read  ", DueDate: now.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Title != "Read" || task.Priority != backend.PriorityMedium || task.Category != backend.CategoryPersonal {
		t.Errorf("unexpected defaults: %+v", task)
	}
	if !task.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v", task.CreatedAt)
	}
	if task.ReminderHandle != "" {
		t.Error("reminder instant already passed, nothing should be armed")
	}
	f.mgr.Wait()
}

func TestUnknownIDs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.mgr.ToggleCompleted(ctx, "nope"); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("ToggleCompleted: expected not found, got %v", err)
	}
	if err := f.mgr.DeleteTask(ctx, "nope"); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("DeleteTask: expected not found, got %v", err)
	}
	if f.remote.Calls("delete") != 0 {
		t.Error("unknown id must not reach the remote")
	}
}

func TestReopenRearms(t *testing.T) {
	f := newFixture()
	f.remote.SetDown(true)
	ctx := context.Background()

	task, _ := f.mgr.CreateTask(ctx, payRent())
	_, _ = f.mgr.ToggleCompleted(ctx, task.ID)
	reopened, err := f.mgr.ToggleCompleted(ctx, task.ID)
	if err != nil {
		t.Fatalf("ToggleCompleted: %v", err)
	}
	if reopened.Completed || reopened.ReminderHandle == "" {
		t.Errorf("reopened task should be armed again: %+v", reopened)
	}
	if reopened.UpdatedAt == nil {
		t.Error("UpdatedAt should be set")
	}
	f.mgr.Wait()
	f.assertNoOrphans(t)
}

func TestResolve(t *testing.T) {
	f := newFixture()
	f.remote.SetDown(true)
	ctx := context.Background()
	a, _ := f.mgr.CreateTask(ctx, payRent())
	b, _ := f.mgr.CreateTask(ctx, payRent())
	f.mgr.Wait()

	if id, err := f.mgr.Resolve(a.ID); err != nil || id != a.ID {
		t.Errorf("Resolve(full) = %q, %v", id, err)
	}
	prefix := a.ID[:8]
	if a.ID[:8] == b.ID[:8] {
		t.Skip("generated ids share a prefix")
	}
	if id, err := f.mgr.Resolve(prefix); err != nil || id != a.ID {
		t.Errorf("Resolve(prefix) = %q, %v", id, err)
	}
	if _, err := f.mgr.Resolve(""); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("Resolve(empty) = %v", err)
	}
	if _, err := f.mgr.Resolve("zzzz"); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("Resolve(unknown) = %v", err)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	f := newFixture()
	_ = f.store.Exclusive(func(tx *cache.Tx) error {
		tx.Upsert(backend.Task{ID: "abc1", Title: "a"})
		tx.Upsert(backend.Task{ID: "abc2", Title: "b"})
		return nil
	})
	if _, err := f.mgr.Resolve("abc"); err == nil {
		t.Fatal("expected ambiguity error")
	}
}

func TestRemoteSnapshotWinsOverUnsyncedEdit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.remote.SetDown(true)
	local, _ := f.mgr.CreateTask(ctx, payRent())
	f.mgr.Wait()

	f.remote.SetDown(false)
	if _, err := f.mgr.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, ok := f.store.Lookup(local.ID); ok {
		t.Error("task missing from the remote snapshot should be dropped")
	}
	f.assertNoOrphans(t)
}

func TestConcurrentMutationsLeaveNoOrphans(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := payRent()
			in.Title = fmt.Sprintf("task %d", i)
			task, err := f.mgr.CreateTask(ctx, in)
			if err != nil {
				t.Errorf("CreateTask: %v", err)
				return
			}
			if i%2 == 0 {
				if _, err := f.mgr.ToggleCompleted(ctx, task.ID); err != nil && !errors.Is(err, utils.ErrNotFound) {
					t.Errorf("ToggleCompleted: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	f.mgr.Wait()

	if _, err := f.mgr.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if f.store.Len() != 20 {
		t.Errorf("expected 20 tasks after sync, got %d", f.store.Len())
	}
	f.assertNoOrphans(t)
}

func TestStartWithoutPersistence(t *testing.T) {
	f := newFixture()
	if n := f.mgr.Start(context.Background()); n != 0 {
		t.Errorf("memory-only store should load nothing, got %d", n)
	}
}

func TestReminderFiredClearsHandle(t *testing.T) {
	f := newFixture()
	f.remote.SetDown(true)
	ctx := context.Background()

	task, _ := f.mgr.CreateTask(ctx, payRent())
	fired := task.ReminderHandle
	if !f.alerter.Fire(fired) {
		t.Fatalf("handle %q was not pending", fired)
	}
	f.mgr.ReminderFired(fired)

	got, _ := f.mgr.Lookup(task.ID)
	if got.ReminderHandle != "" {
		t.Errorf("fired handle still held: %q", got.ReminderHandle)
	}
	f.assertNoOrphans(t)

	// Completing and reopening arms a fresh reminder; a late report for
	// the old handle must not clear it.
	_, _ = f.mgr.ToggleCompleted(ctx, task.ID)
	reopened, _ := f.mgr.ToggleCompleted(ctx, task.ID)
	f.mgr.ReminderFired(fired)
	if got, _ := f.mgr.Lookup(task.ID); got.ReminderHandle == "" || got.ReminderHandle != reopened.ReminderHandle {
		t.Errorf("re-armed handle lost: %q, want %q", got.ReminderHandle, reopened.ReminderHandle)
	}
	f.mgr.Wait()
	f.assertNoOrphans(t)
}

func TestDeleteFollowsRemoteRename(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// The remote create is held back until the delete reaches the remote,
	// which then waits for the task to take its remote id.
	release := make(chan struct{})
	var once sync.Once
	f.remote.Hook = func(op string) {
		switch op {
		case "create":
			<-release
		case "delete":
			once.Do(func() {
				close(release)
				f.mgr.Wait()
			})
		}
	}

	task, err := f.mgr.CreateTask(ctx, payRent())
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := f.mgr.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	f.mgr.Wait()

	if f.store.Len() != 0 {
		t.Errorf("renamed task survived the delete: %+v", f.store.Get())
	}
	if left := f.remote.Tasks(); len(left) != 0 {
		t.Errorf("remote still holds %+v", left)
	}
	if f.remote.Calls("delete") != 2 {
		t.Errorf("expected the remote id to be deleted too, got %d delete calls", f.remote.Calls("delete"))
	}
	f.assertNoOrphans(t)

	if err := f.mgr.DeleteTask(ctx, task.ID); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("second delete = %v, want not found", err)
	}
}
