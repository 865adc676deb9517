package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/cache"
	"taskmaster/internal/reconcile"
	"taskmaster/internal/reminder"
	"taskmaster/internal/utils"
)

var now = time.Date(2026, 1, 10, 12, 0, 0, 0, time.Local)

type fixture struct {
	store     *cache.Store
	alerter   *reminder.FakeAlerter
	reminders *reminder.Scheduler
	remote    *backend.FakeRemote
	rec       *reconcile.Reconciler
}

func newFixture(remote ...backend.RemoteTask) *fixture {
	f := &fixture{
		store:   cache.New(nil),
		alerter: reminder.NewFakeAlerter(),
		remote:  backend.NewFakeRemote(remote...),
	}
	f.reminders = reminder.NewScheduler(f.alerter, time.Hour)
	f.reminders.SetClock(func() time.Time { return now })
	f.rec = reconcile.New(f.store, f.reminders, f.remote)
	return f
}

func remoteTask(id, title string, due time.Time) backend.RemoteTask {
	return backend.RemoteTask{
		ID:        id,
		Title:     title,
		DueDate:   backend.FormatTimestamp(due),
		Priority:  "medium",
		Category:  "work",
		CreatedAt: backend.FormatTimestamp(now.Add(-24 * time.Hour)),
	}
}

// assertNoOrphans checks every scheduled alert is either cancelled or held by exactly one task.
func (f *fixture) assertNoOrphans(t *testing.T) {
	t.Helper()
	if f.alerter.Scheduled() != f.alerter.Cancelled()+f.alerter.Pending() {
		t.Errorf("arm/release accounting broken: scheduled=%d cancelled=%d pending=%d",
			f.alerter.Scheduled(), f.alerter.Cancelled(), f.alerter.Pending())
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
		if _, ok := f.alerter.FireAt(task.ReminderHandle); !ok {
			t.Errorf("task %s holds a handle that is not pending", task.ID)
		}
	}
	if held != f.alerter.Pending() {
		t.Errorf("%d handles held by tasks but %d alerts pending", held, f.alerter.Pending())
	}
}

func TestTranslateSurrogatesAndDuplicates(t *testing.T) {
	noID := remoteTask("", "Read", now.Add(48*time.Hour))
	snapshot := []backend.RemoteTask{
		noID,
		noID,
		remoteTask("a", "first", now.Add(48*time.Hour)),
		remoteTask("a", "second", now.Add(48*time.Hour)),
	}

	tasks := reconcile.Translate(snapshot)
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[0].ID == "" || tasks[0].ID == tasks[1].ID {
		t.Errorf("identical id-less records need distinct surrogates: %q %q", tasks[0].ID, tasks[1].ID)
	}
	if tasks[2].Title != "first" {
		t.Errorf("duplicate id should keep first record, got %q", tasks[2].Title)
	}

	again := reconcile.Translate(snapshot)
	if again[0].ID != tasks[0].ID || again[1].ID != tasks[1].ID {
		t.Error("surrogate ids must be stable across translations")
	}
}

func TestReconcileArmsIncompleteFutureTasks(t *testing.T) {
	done := remoteTask("done", "Done", now.Add(48*time.Hour))
	done.Completed = true
	f := newFixture()

	res := f.rec.Reconcile([]backend.RemoteTask{
		remoteTask("future", "Future", now.Add(48*time.Hour)),
		remoteTask("past", "Past", now.Add(-time.Hour)),
		remoteTask("soon", "Soon", now.Add(30*time.Minute)),
		done,
		{ID: "nodate", Title: "No date", DueDate: "whenever"},
	})

	if res.Added != 5 || res.Armed != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if _, ok := f.reminders.Outstanding("future"); !ok {
		t.Error("future task should have an armed reminder")
	}
	got := f.store.Get()
	if got[0].ID != "future" || got[4].ID != "nodate" {
		t.Errorf("store should follow remote order, got %s..%s", got[0].ID, got[4].ID)
	}
	if got[4].HasDueDate() {
		t.Error("unparseable due date should be kept as unknown")
	}
	f.assertNoOrphans(t)
}

func TestReconcileIsIdempotent(t *testing.T) {
	snapshot := []backend.RemoteTask{
		remoteTask("a", "A", now.Add(48*time.Hour)),
		remoteTask("b", "B", now.Add(-time.Hour)),
		remoteTask("", "C", now.Add(72*time.Hour)),
	}
	f := newFixture()

	f.rec.Reconcile(snapshot)
	first := f.store.Get()
	scheduled := f.alerter.Scheduled()

	res := f.rec.Reconcile(snapshot)
	second := f.store.Get()

	if res.Added != 0 || res.Updated != 0 || res.Removed != 0 || res.Armed != 0 || res.Released != 0 {
		t.Errorf("second reconcile should change nothing, got %+v", res)
	}
	if len(first) != len(second) {
		t.Fatalf("store size changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].ReminderHandle != second[i].ReminderHandle {
			t.Errorf("task %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
	if f.alerter.Scheduled() != scheduled {
		t.Error("second reconcile must not schedule new alerts")
	}
	f.assertNoOrphans(t)
}

func TestReconcileRemoteIsTruth(t *testing.T) {
	f := newFixture()
	local := backend.Task{ID: "x", Title: "Unsynced", DueDate: now.Add(48 * time.Hour), Priority: backend.PriorityHigh, Category: backend.CategoryWork}
	local.ReminderHandle, _ = f.reminders.Arm(local)
	f.store.Upsert(local)

	res := f.rec.Reconcile([]backend.RemoteTask{remoteTask("y", "Remote", now.Add(48*time.Hour))})

	if _, ok := f.store.Lookup("x"); ok {
		t.Error("task absent from the remote must be removed")
	}
	if res.Removed != 1 || res.Released != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if _, ok := f.reminders.Outstanding("x"); ok {
		t.Error("removed task's reminder must be released")
	}
	f.assertNoOrphans(t)
}

func TestReconcileReleasesOnRemoteCompletion(t *testing.T) {
	rt := remoteTask("a", "A", now.Add(48*time.Hour))
	f := newFixture()
	f.rec.Reconcile([]backend.RemoteTask{rt})

	rt.Completed = true
	res := f.rec.Reconcile([]backend.RemoteTask{rt})

	got, _ := f.store.Lookup("a")
	if !got.Completed || got.ReminderHandle != "" {
		t.Errorf("completed task should hold no handle: %+v", got)
	}
	if res.Updated != 1 || res.Released != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	f.assertNoOrphans(t)
}

func TestReconcileRearmsOnDueDateChange(t *testing.T) {
	rt := remoteTask("a", "A", now.Add(48*time.Hour))
	f := newFixture()
	f.rec.Reconcile([]backend.RemoteTask{rt})
	before, _ := f.store.Lookup("a")

	newDue := now.Add(96 * time.Hour)
	rt.DueDate = backend.FormatTimestamp(newDue)
	f.rec.Reconcile([]backend.RemoteTask{rt})
	after, _ := f.store.Lookup("a")

	if after.ReminderHandle == "" || after.ReminderHandle == before.ReminderHandle {
		t.Fatalf("expected a fresh handle, before=%q after=%q", before.ReminderHandle, after.ReminderHandle)
	}
	if at, _ := f.alerter.FireAt(after.ReminderHandle); !at.Equal(newDue.Add(-time.Hour)) {
		t.Errorf("reminder fires at %v, want %v", at, newDue.Add(-time.Hour))
	}
	f.assertNoOrphans(t)
}

func TestSyncFailureLeavesStoreUntouched(t *testing.T) {
	f := newFixture(remoteTask("a", "A", now.Add(48*time.Hour)))
	if _, err := f.rec.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	before := f.store.Get()

	f.remote.SetTasks()
	f.remote.SetDown(true)
	res, err := f.rec.Sync(context.Background())
	if !errors.Is(err, utils.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result on failure, got %+v", res)
	}
	after := f.store.Get()
	if len(after) != len(before) || after[0].ReminderHandle != before[0].ReminderHandle {
		t.Error("failed sync must not touch the store")
	}
}

func TestRearmAllReplacesRestoredHandles(t *testing.T) {
	f := newFixture()
	f.store.ReplaceAll([]backend.Task{
		{ID: "a", Title: "A", DueDate: now.Add(48 * time.Hour), ReminderHandle: "from-last-run"},
		{ID: "b", Title: "B", DueDate: now.Add(48 * time.Hour), Completed: true, ReminderHandle: "stale"},
		{ID: "c", Title: "C", DueDate: now.Add(-time.Hour)},
	})

	if armed := f.rec.RearmAll(); armed != 1 {
		t.Errorf("expected 1 armed, got %d", armed)
	}
	a, _ := f.store.Lookup("a")
	if a.ReminderHandle == "" || a.ReminderHandle == "from-last-run" {
		t.Errorf("task a should hold a fresh handle, got %q", a.ReminderHandle)
	}
	if b, _ := f.store.Lookup("b"); b.ReminderHandle != "" {
		t.Errorf("completed task should lose its handle, got %q", b.ReminderHandle)
	}
	f.assertNoOrphans(t)
}
