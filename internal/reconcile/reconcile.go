// Package reconcile merges remote task snapshots into the local store.
// The remote is the source of truth: whatever snapshot is fetched wins.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"taskmaster/backend"
	"taskmaster/internal/cache"
	"taskmaster/internal/reminder"
	"taskmaster/internal/utils"
)

// Result counts what one reconciliation changed.
type Result struct {
	Added     int
	Updated   int
	Unchanged int
	Removed   int
	Armed     int
	Released  int
}

// String summarizes the result for logs and CLI output.
func (r Result) String() string {
	return fmt.Sprintf("%d added, %d updated, %d removed, %d reminders armed, %d released",
		r.Added, r.Updated, r.Removed, r.Armed, r.Released)
}

// Reconciler applies remote snapshots to a cache.Store and keeps reminders in step.
type Reconciler struct {
	store     *cache.Store
	reminders *reminder.Scheduler
	remote    backend.RemoteStore
}

// New creates a Reconciler.
func New(store *cache.Store, reminders *reminder.Scheduler, remote backend.RemoteStore) *Reconciler {
	return &Reconciler{store: store, reminders: reminders, remote: remote}
}

// Sync fetches the remote snapshot and reconciles it. When the fetch fails
// the store is left untouched and an ErrRemoteUnavailable error is returned.
func (r *Reconciler) Sync(ctx context.Context) (*Result, error) {
	snapshot, err := r.remote.FetchAll(ctx)
	if err != nil {
		utils.Debugf("Remote fetch failed, keeping local state: %v", err)
		return nil, utils.ErrRemoteOffline("fetch tasks", err)
	}
	res := r.Reconcile(snapshot)
	utils.Debugf("Reconciled %d remote tasks: %s", len(snapshot), res)
	return &res, nil
}

// Reconcile replaces the store with the translated snapshot, in remote order.
// Reminders of vanished or completed tasks are released, still-valid ones
// are carried over, and incomplete future tasks lacking one are armed.
// Store and reminder changes happen inside one exclusive section.
func (r *Reconciler) Reconcile(snapshot []backend.RemoteTask) Result {
	incoming := Translate(snapshot)
	var res Result

	_ = r.store.Exclusive(func(tx *cache.Tx) error {
		before := tx.Get()
		prev := make(map[string]backend.Task, len(before))
		for _, t := range before {
			prev[t.ID] = t
		}

		seen := make(map[string]bool, len(incoming))
		next := make([]backend.Task, 0, len(incoming))
		for _, t := range incoming {
			seen[t.ID] = true
			old, existed := prev[t.ID]
			switch {
			case !existed:
				res.Added++
			case sameContent(old, t):
				res.Unchanged++
			default:
				res.Updated++
			}

			if existed && old.ReminderHandle != "" {
				if r.stillValid(old, t) {
					t.ReminderHandle = old.ReminderHandle
				} else {
					r.reminders.Release(old.ReminderHandle)
					res.Released++
				}
			}

			if t.ReminderHandle == "" && !t.Completed && t.HasDueDate() {
				if h, ok := r.reminders.Arm(t); ok {
					t.ReminderHandle = h
					res.Armed++
				}
			}
			next = append(next, t)
		}

		for _, old := range before {
			if seen[old.ID] {
				continue
			}
			res.Removed++
			if old.ReminderHandle != "" {
				r.reminders.Release(old.ReminderHandle)
				res.Released++
			}
			r.reminders.ReleaseTask(old.ID)
		}

		tx.ReplaceAll(next)
		return nil
	})

	return res
}

// stillValid reports whether the alert armed for old also serves its replacement.
func (r *Reconciler) stillValid(old, t backend.Task) bool {
	if t.Completed || !t.DueDate.Equal(old.DueDate) {
		return false
	}
	h, ok := r.reminders.Outstanding(t.ID)
	return ok && h == old.ReminderHandle
}

// RearmAll releases every reminder handle in the store and arms afresh.
// Handles restored from persistence belong to an earlier process.
func (r *Reconciler) RearmAll() int {
	armed := 0
	_ = r.store.Exclusive(func(tx *cache.Tx) error {
		for _, t := range tx.Get() {
			old := t.ReminderHandle
			if old != "" {
				r.reminders.Release(old)
				t.ReminderHandle = ""
			}
			if !t.Completed && t.HasDueDate() {
				if h, ok := r.reminders.Arm(t); ok {
					t.ReminderHandle = h
					armed++
				}
			}
			if t.ReminderHandle != old {
				tx.Upsert(t)
			}
		}
		return nil
	})
	return armed
}

// Translate converts a remote snapshot into tasks. Records without an id
// get a deterministic surrogate; later records repeating an id are dropped.
func Translate(snapshot []backend.RemoteTask) []backend.Task {
	out := make([]backend.Task, 0, len(snapshot))
	seen := make(map[string]bool, len(snapshot))
	occurrences := make(map[string]int)

	for _, rt := range snapshot {
		t := backend.FromRemote(rt)
		if strings.TrimSpace(rt.ID) == "" {
			key := contentKey(rt)
			t.ID = backend.SurrogateID(rt, occurrences[key])
			occurrences[key]++
		}
		if seen[t.ID] {
			utils.Debugf("Skipping duplicate remote task id %s", t.ID)
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

func contentKey(r backend.RemoteTask) string {
	return strings.Join([]string{r.Title, r.DueDate, r.CreatedAt, r.Priority, r.Category}, "\x1f")
}

func sameContent(a, b backend.Task) bool {
	return a.Title == b.Title &&
		a.DueDate.Equal(b.DueDate) &&
		a.Priority == b.Priority &&
		a.Category == b.Category &&
		a.Completed == b.Completed &&
		a.CreatedAt.Equal(b.CreatedAt)
}
