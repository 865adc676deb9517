package reminder

import (
	"fmt"
	"sync"
	"time"

	"taskmaster/internal/notification"
)

// FakeAlerter records scheduling calls instead of firing anything.
// Use it in tests to check that every armed alert is eventually released.
type FakeAlerter struct {
	mu        sync.Mutex
	next      int
	scheduled int
	cancelled int
	fired     int
	pending   map[string]time.Time
	payloads  map[string]notification.Notification
}

// NewFakeAlerter creates an empty FakeAlerter.
func NewFakeAlerter() *FakeAlerter {
	return &FakeAlerter{
		pending:  make(map[string]time.Time),
		payloads: make(map[string]notification.Notification),
	}
}

// ScheduleOneShot implements Alerter
func (f *FakeAlerter) ScheduleOneShot(fireAt time.Time, payload notification.Notification) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.scheduled++
	handle := fmt.Sprintf("alert-%d", f.next)
	f.pending[handle] = fireAt
	f.payloads[handle] = payload
	return handle, true
}

// Cancel implements Alerter. Only cancellations of pending handles are counted.
func (f *FakeAlerter) Cancel(handle string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[handle]; ok {
		delete(f.pending, handle)
		delete(f.payloads, handle)
		f.cancelled++
	}
}

// Fire makes a pending alert go off: it stops being pending and is counted
// as fired. It returns false for handles that are not pending.
func (f *FakeAlerter) Fire(handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[handle]; !ok {
		return false
	}
	delete(f.pending, handle)
	delete(f.payloads, handle)
	f.fired++
	return true
}

// Fired returns how many alerts went off.
func (f *FakeAlerter) Fired() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fired
}

// Scheduled returns how many alerts were scheduled.
func (f *FakeAlerter) Scheduled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduled
}

// Cancelled returns how many pending alerts were cancelled.
func (f *FakeAlerter) Cancelled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// Pending returns how many alerts are still pending.
func (f *FakeAlerter) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// FireAt returns the instant handle was scheduled for.
func (f *FakeAlerter) FireAt(handle string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.pending[handle]
	return at, ok
}

// Payload returns the notification scheduled under handle.
func (f *FakeAlerter) Payload(handle string) (notification.Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.payloads[handle]
	return n, ok
}
