// Package reminder arms one alert per task, ahead of the task's due date.
package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/notification"
)

// DefaultLead is how long before the due date a reminder fires.
const DefaultLead = time.Hour

// Config holds the reminder configuration
type Config struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Lead            string `yaml:"lead" json:"lead"`
	OSNotification  bool   `yaml:"os_notification" json:"os_notification"`
	LogNotification bool   `yaml:"log_notification" json:"log_notification"`
	LogPath         string `yaml:"log_path" json:"log_path"`
}

// LeadDuration returns the configured lead, falling back to DefaultLead.
func (c *Config) LeadDuration() (time.Duration, error) {
	if c == nil || strings.TrimSpace(c.Lead) == "" {
		return DefaultLead, nil
	}
	d, atDue, err := ParseInterval(c.Lead)
	if err != nil {
		return 0, err
	}
	if atDue {
		return 0, nil
	}
	return d, nil
}

// Alerter is the platform facility reminders are scheduled on.
// Cancel must accept handles that already fired or were never issued.
type Alerter interface {
	ScheduleOneShot(fireAt time.Time, payload notification.Notification) (string, bool)
	Cancel(handle string)
}

// Scheduler maps tasks to at most one outstanding alert each.
// It never holds tasks, only handles keyed by task id.
type Scheduler struct {
	alerter Alerter
	lead    time.Duration
	now     func() time.Time

	mu      sync.Mutex
	handles map[string]string // task id -> handle
}

// NewScheduler creates a scheduler. A nil alerter disables reminders: Arm never yields a handle.
func NewScheduler(alerter Alerter, lead time.Duration) *Scheduler {
	return &Scheduler{
		alerter: alerter,
		lead:    lead,
		now:     time.Now,
		handles: make(map[string]string),
	}
}

// SetClock replaces the time source, for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Lead returns how long before the due date reminders fire.
func (s *Scheduler) Lead() time.Duration {
	return s.lead
}

// FireAt returns the instant a reminder for task would fire.
func (s *Scheduler) FireAt(task backend.Task) time.Time {
	return task.DueDate.Add(-s.lead)
}

// Arm schedules the reminder for task and returns its handle.
// Any handle already held for the task is released first. No handle is
// returned when the task is completed, has no due date, or the fire
// instant is not strictly in the future.
func (s *Scheduler) Arm(task backend.Task) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked(task.ID, task.ReminderHandle)

	if s.alerter == nil || task.Completed || !task.HasDueDate() {
		return "", false
	}
	fireAt := s.FireAt(task)
	if !fireAt.After(s.now()) {
		return "", false
	}

	handle, ok := s.alerter.ScheduleOneShot(fireAt, notification.Reminder(task.ID, task.Title, task.DueDate))
	if !ok {
		return "", false
	}
	s.handles[task.ID] = handle
	return handle, true
}

// Release cancels the alert behind handle. It is safe to call with an
// empty, unknown, fired or already released handle.
func (s *Scheduler) Release(handle string) {
	if handle == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.handles {
		if h == handle {
			delete(s.handles, id)
		}
	}
	if s.alerter != nil {
		s.alerter.Cancel(handle)
	}
}

// Fired forgets handle after its alert went off and reports whether a task
// still held it. Nothing is cancelled.
func (s *Scheduler) Fired(handle string) bool {
	if handle == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.handles {
		if h == handle {
			delete(s.handles, id)
			return true
		}
	}
	return false
}

// ReleaseTask cancels whatever alert is held for task id.
func (s *Scheduler) ReleaseTask(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(id, "")
}

func (s *Scheduler) releaseLocked(id, handle string) {
	if h, ok := s.handles[id]; ok {
		delete(s.handles, id)
		if s.alerter != nil {
			s.alerter.Cancel(h)
		}
		if h == handle {
			return
		}
	}
	if handle != "" && s.alerter != nil {
		s.alerter.Cancel(handle)
	}
}

// Outstanding returns the handle held for task id, if any.
func (s *Scheduler) Outstanding(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	return h, ok
}

// Count returns the number of tasks with an outstanding alert.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Rekey moves the handle held for oldID to newID, e.g. when the remote assigns an id.
func (s *Scheduler) Rekey(oldID, newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[oldID]; ok {
		delete(s.handles, oldID)
		s.handles[newID] = h
	}
}

var intervalPattern = regexp.MustCompile(`^(\d+)\s*(d|day|days|h|hour|hours|m|min|minute|minutes|w|week|weeks)$`)

// ParseInterval parses an interval string and returns the duration.
// Returns (duration, isAtDueTime, error).
// isAtDueTime is true for "at due time", i.e. a zero lead.
// Supports both shorthand formats (1d, 1h, 15m, 1w) and full word formats (1 day, 1 hour, 15 minutes, 1 week).
func ParseInterval(interval string) (time.Duration, bool, error) {
	interval = strings.TrimSpace(strings.ToLower(interval))

	if interval == "at due time" {
		return 0, true, nil
	}

	matches := intervalPattern.FindStringSubmatch(interval)
	if matches == nil {
		return 0, false, fmt.Errorf("invalid interval format: %s", interval)
	}

	num, _ := strconv.Atoi(matches[1])

	var duration time.Duration
	switch matches[2] {
	case "d", "day", "days":
		duration = time.Duration(num) * 24 * time.Hour
	case "h", "hour", "hours":
		duration = time.Duration(num) * time.Hour
	case "m", "min", "minute", "minutes":
		duration = time.Duration(num) * time.Minute
	case "w", "week", "weeks":
		duration = time.Duration(num) * 7 * 24 * time.Hour
	}

	return duration, false, nil
}
