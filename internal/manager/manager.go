// Package manager is the mutation API: it validates user edits, applies
// them to the local store with their reminder effects, and pushes them to
// the remote store in the background.
package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/cache"
	"taskmaster/internal/reconcile"
	"taskmaster/internal/reminder"
	"taskmaster/internal/utils"
)

const (
	// DefaultConnectivityTimeout bounds the remote delete that runs before local removal.
	DefaultConnectivityTimeout = 5 * time.Second
	// DefaultBackgroundTimeout bounds each background remote write and the sync that follows it.
	DefaultBackgroundTimeout = 30 * time.Second
)

// Options tunes a Manager.
type Options struct {
	ConnectivityTimeout time.Duration
	BackgroundTimeout   time.Duration
	Now                 func() time.Time
}

// Input is the user-supplied part of a new task.
type Input struct {
	Title    string
	DueDate  time.Time
	Priority backend.Priority
	Category backend.Category
}

// Manager applies user mutations. Only validation and lookup failures are
// returned to callers; remote failures are logged and local state stands.
type Manager struct {
	store      *cache.Store
	reminders  *reminder.Scheduler
	remote     backend.RemoteStore
	reconciler *reconcile.Reconciler

	connectivityTimeout time.Duration
	backgroundTimeout   time.Duration
	now                 func() time.Time

	mu      sync.Mutex
	renamed map[string]string // local id -> id the remote assigned

	wg sync.WaitGroup
}

// New creates a Manager. A nil remote behaves like backend.Offline.
func New(store *cache.Store, reminders *reminder.Scheduler, remote backend.RemoteStore, opts Options) *Manager {
	if remote == nil {
		remote = backend.Offline{}
	}
	if opts.ConnectivityTimeout <= 0 {
		opts.ConnectivityTimeout = DefaultConnectivityTimeout
	}
	if opts.BackgroundTimeout <= 0 {
		opts.BackgroundTimeout = DefaultBackgroundTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:               store,
		reminders:           reminders,
		remote:              remote,
		reconciler:          reconcile.New(store, reminders, remote),
		connectivityTimeout: opts.ConnectivityTimeout,
		backgroundTimeout:   opts.BackgroundTimeout,
		now:                 opts.Now,
		renamed:             make(map[string]string),
	}
}

// Start restores the persisted collection and re-arms its reminders.
// A load failure is logged and the session starts empty.
func (m *Manager) Start(ctx context.Context) int {
	n, err := m.store.Load(ctx)
	if err != nil {
		utils.Warnf("Starting with an empty task list: %v", err)
		return 0
	}
	armed := m.reconciler.RearmAll()
	utils.Debugf("Loaded %d tasks, armed %d reminders", n, armed)
	return n
}

// Tasks returns the current store snapshot.
func (m *Manager) Tasks() []backend.Task {
	return m.store.Snapshot()
}

// Lookup returns the task with id.
func (m *Manager) Lookup(id string) (backend.Task, bool) {
	return m.store.Lookup(id)
}

// Reconciler exposes the reconciler, e.g. for the sync daemon.
func (m *Manager) Reconciler() *reconcile.Reconciler {
	return m.reconciler
}

// Sync fetches the remote snapshot and reconciles the store with it.
func (m *Manager) Sync(ctx context.Context) (*reconcile.Result, error) {
	return m.reconciler.Sync(ctx)
}

// Wait blocks until every background write and follow-up sync has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Resolve maps a full id or a unique id prefix to a task id.
func (m *Manager) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", utils.ErrTaskNotFound(ref)
	}
	if _, ok := m.store.Lookup(ref); ok {
		return ref, nil
	}
	var matches []string
	for _, t := range m.store.Get() {
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", utils.ErrTaskNotFound(ref)
	case 1:
		return matches[0], nil
	default:
		return "", utils.ErrAmbiguousTask(ref, len(matches))
	}
}

// CreateTask validates in, stores the new task with its reminder armed,
// and creates it remotely in the background. Once the remote accepts it
// the task takes the remote id and a sync pass runs.
func (m *Manager) CreateTask(ctx context.Context, in Input) (backend.Task, error) {
	task, err := m.newTask(in)
	if err != nil {
		return backend.Task{}, err
	}

	_ = m.store.Exclusive(func(tx *cache.Tx) error {
		if h, ok := m.reminders.Arm(task); ok {
			task.ReminderHandle = h
		}
		tx.Upsert(task)
		return nil
	})
	utils.Debugf("Created task %s (%q)", task.ID, task.Title)

	m.background("create", func(ctx context.Context) bool {
		rt, err := m.remote.Create(ctx, backend.ToRemoteInput(task))
		if err != nil {
			utils.Warnf("Task %q kept locally: %v", task.Title, utils.ErrRemoteOffline("create task", err))
			return false
		}
		if rt != nil && rt.ID != "" && rt.ID != task.ID {
			m.adoptRemoteID(task.ID, rt.ID)
		}
		return true
	})
	return task, nil
}

func (m *Manager) newTask(in Input) (backend.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return backend.Task{}, utils.ErrInvalidTask("title is required")
	}
	if in.DueDate.IsZero() {
		return backend.Task{}, utils.ErrInvalidTask("due date is required")
	}
	if in.Priority == "" {
		in.Priority = backend.PriorityMedium
	}
	if !in.Priority.Valid() {
		return backend.Task{}, utils.ErrInvalidTask("invalid priority " + string(in.Priority))
	}
	if in.Category == "" {
		in.Category = backend.CategoryPersonal
	}
	if !in.Category.Valid() {
		return backend.Task{}, utils.ErrInvalidTask("invalid category " + string(in.Category))
	}
	return backend.Task{
		ID:        backend.GenerateID(),
		Title:     title,
		DueDate:   in.DueDate,
		Priority:  in.Priority,
		Category:  in.Category,
		CreatedAt: m.now(),
	}, nil
}

// adoptRemoteID renames a locally created task to the id the remote assigned.
// If a sync already brought the remote copy in, the local one is dropped.
func (m *Manager) adoptRemoteID(localID, remoteID string) {
	_ = m.store.Exclusive(func(tx *cache.Tx) error {
		m.mu.Lock()
		m.renamed[localID] = remoteID
		m.mu.Unlock()

		if tx.Rekey(localID, remoteID) {
			m.reminders.Rekey(localID, remoteID)
			return nil
		}
		if dup, ok := tx.Remove(localID); ok {
			m.reminders.Release(dup.ReminderHandle)
			m.reminders.ReleaseTask(localID)
			utils.Debugf("Dropped local copy %s of remote task %s", localID, remoteID)
		}
		return nil
	})
}

// currentID follows the renames made by adoptRemoteID, so an id handed
// out before the remote assigned one still finds its task.
func (m *Manager) currentID(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hops := 0; hops < len(m.renamed); hops++ {
		next, ok := m.renamed[id]
		if !ok {
			break
		}
		id = next
	}
	return id
}

// ReminderFired clears the handle of the task whose reminder went off.
// A handle released or replaced in the meantime is left alone.
func (m *Manager) ReminderFired(handle string) {
	if handle == "" {
		return
	}
	_ = m.store.Exclusive(func(tx *cache.Tx) error {
		m.reminders.Fired(handle)
		for _, t := range tx.Get() {
			if t.ReminderHandle == handle {
				t.ReminderHandle = ""
				tx.Upsert(t)
				utils.Debugf("Reminder for task %s fired", t.ID)
			}
		}
		return nil
	})
}

// ToggleCompleted flips the completed flag of task id. Completing releases
// its reminder; reopening arms a new one.
func (m *Manager) ToggleCompleted(ctx context.Context, id string) (backend.Task, error) {
	var task backend.Task
	err := m.store.Exclusive(func(tx *cache.Tx) error {
		t, ok := tx.Lookup(m.currentID(id))
		if !ok {
			return utils.ErrTaskNotFound(id)
		}
		t.Completed = !t.Completed
		updated := m.now()
		t.UpdatedAt = &updated

		if t.Completed {
			m.reminders.Release(t.ReminderHandle)
			m.reminders.ReleaseTask(t.ID)
			t.ReminderHandle = ""
		} else if h, ok := m.reminders.Arm(t); ok {
			t.ReminderHandle = h
		} else {
			t.ReminderHandle = ""
		}
		tx.Upsert(t)
		task = t
		return nil
	})
	if err != nil {
		return backend.Task{}, err
	}

	completed := task.Completed
	m.background("update", func(ctx context.Context) bool {
		if err := m.remote.Update(ctx, task.ID, backend.TaskUpdate{Completed: &completed}); err != nil {
			utils.Warnf("Completion of %q kept locally: %v", task.Title, utils.ErrRemoteOffline("update task", err))
			return false
		}
		return true
	})
	return task, nil
}

// DeleteTask removes task id. The remote delete is attempted first, bounded
// by the connectivity timeout; local removal happens whatever its outcome.
func (m *Manager) DeleteTask(ctx context.Context, id string) error {
	id = m.currentID(id)
	task, ok := m.store.Lookup(id)
	if !ok {
		return utils.ErrTaskNotFound(id)
	}

	rctx, cancel := context.WithTimeout(ctx, m.connectivityTimeout)
	remoteErr := m.remote.Delete(rctx, id)
	cancel()
	if remoteErr != nil {
		utils.Warnf("Deleting %q locally only: %v", task.Title, utils.ErrRemoteOffline("delete task", remoteErr))
	}

	// A background create may have renamed the task while the remote call ran.
	var removed backend.Task
	err := m.store.Exclusive(func(tx *cache.Tx) error {
		current := m.currentID(id)
		t, ok := tx.Remove(current)
		if !ok {
			return utils.ErrTaskNotFound(id)
		}
		m.reminders.Release(t.ReminderHandle)
		m.reminders.ReleaseTask(current)
		removed = t
		return nil
	})
	if err != nil {
		return err
	}
	utils.Debugf("Deleted task %s", removed.ID)

	switch {
	case removed.ID != id:
		m.background("delete", func(ctx context.Context) bool {
			if err := m.remote.Delete(ctx, removed.ID); err != nil {
				utils.Warnf("Task %q deleted locally only: %v", removed.Title, utils.ErrRemoteOffline("delete task", err))
				return false
			}
			return true
		})
	case remoteErr == nil:
		m.background("sync", func(context.Context) bool { return true })
	}
	return nil
}

// background runs write in its own goroutine and, if it succeeds, a sync pass.
func (m *Manager) background(op string, write func(ctx context.Context) bool) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.backgroundTimeout)
		defer cancel()

		if !write(ctx) {
			return
		}
		if _, err := m.reconciler.Sync(ctx); err != nil {
			utils.Debugf("Sync after %s skipped: %v", op, err)
		}
	}()
}
