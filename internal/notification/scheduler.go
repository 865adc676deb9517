package notification

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"taskmaster/internal/utils"
)

// Scheduler delivers notifications at a future instant through a Sender.
type Scheduler struct {
	sender Sender
	now    func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	onFire func(handle string)
	closed bool
}

// NewScheduler creates a scheduler that delivers through s.
func NewScheduler(s Sender) *Scheduler {
	return &Scheduler{
		sender: s,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
}

// SetClock replaces the time source delays are measured from.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OnFire registers fn to be called with the handle of every notification
// as it fires, before it is delivered. fn runs on the timer goroutine
// without the scheduler's lock held.
func (s *Scheduler) OnFire(fn func(handle string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFire = fn
}

// ScheduleOneShot arranges for payload to be sent once at fireAt.
// It returns false when fireAt is not in the future or the scheduler is closed.
func (s *Scheduler) ScheduleOneShot(fireAt time.Time, payload Notification) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := fireAt.Sub(s.now())
	if delay <= 0 {
		return "", false
	}
	if s.closed {
		return "", false
	}

	handle := uuid.New().String()
	s.timers[handle] = time.AfterFunc(delay, func() { s.fire(handle, payload) })
	return handle, true
}

func (s *Scheduler) fire(handle string, n Notification) {
	s.mu.Lock()
	if _, ok := s.timers[handle]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.timers, handle)
	if n.At.IsZero() {
		n.At = s.now()
	}
	onFire := s.onFire
	s.mu.Unlock()

	if onFire != nil {
		onFire(handle)
	}
	if err := s.sender.Send(n); err != nil {
		utils.Warnf("Failed to deliver %s notification: %v", n.Kind, err)
	}
}

// Cancel stops a pending notification. Unknown, fired and cancelled handles are ignored.
func (s *Scheduler) Cancel(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[handle]; ok {
		t.Stop()
		delete(s.timers, handle)
	}
}

// Pending returns the number of notifications that have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels every pending notification and refuses new ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, t := range s.timers {
		t.Stop()
		delete(s.timers, h)
	}
	s.closed = true
}
