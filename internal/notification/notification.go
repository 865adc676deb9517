// Package notification delivers task alerts and sync events to the user,
// and schedules one-shot alerts for future instants.
package notification

import (
	"time"
)

// Kind tells channels what an alert is about.
type Kind string

const (
	KindReminder  Kind = "reminder"
	KindSyncError Kind = "sync_error"
	KindTest      Kind = "test"
)

// Notification is one alert. At is filled in on delivery when left zero.
type Notification struct {
	Kind    Kind
	TaskID  string
	Title   string
	Message string
	At      time.Time
}

// Reminder builds the alert raised ahead of a task's due date.
func Reminder(taskID, title string, due time.Time) Notification {
	return Notification{
		Kind:    KindReminder,
		TaskID:  taskID,
		Title:   "Task Reminder",
		Message: title + " - Due: " + due.Format("2006-01-02 15:04"),
	}
}

// Sender delivers a notification right away.
type Sender interface {
	Send(n Notification) error
}

// Channel is one delivery target.
type Channel interface {
	Sender
	Name() string
	Close() error
}
