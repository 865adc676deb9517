package backend

import (
	"strings"
	"time"
)

// DateTimeLayout is the wire format used when sending timestamps to the remote store.
const DateTimeLayout = "2006-01-02T15:04:05"

// zone-less layouts are read in local time, as the remote emits Python isoformat() strings
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses a remote or user supplied timestamp.
// It returns false instead of an error so callers can treat bad dates as absent.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t in the zone-less wire format, in local time.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(time.Local).Format(DateTimeLayout)
}

// FromRemote translates a remote record into a Task. The id is taken from
// the record; callers decide on a surrogate when it is empty.
func FromRemote(r RemoteTask) Task {
	t := Task{
		ID:        r.ID,
		Title:     r.Title,
		Priority:  Priority(strings.ToLower(r.Priority)),
		Category:  Category(strings.ToLower(r.Category)),
		Completed: r.Completed,
	}
	if due, ok := ParseTimestamp(r.DueDate); ok {
		t.DueDate = due
	}
	if created, ok := ParseTimestamp(r.CreatedAt); ok {
		t.CreatedAt = created
	}
	if r.UpdatedAt != nil {
		if updated, ok := ParseTimestamp(*r.UpdatedAt); ok {
			t.UpdatedAt = &updated
		}
	}
	return t
}

// ToRemoteInput builds the create request body for a locally created task.
func ToRemoteInput(t Task) RemoteTaskInput {
	in := RemoteTaskInput{
		Title:    t.Title,
		DueDate:  FormatTimestamp(t.DueDate),
		Priority: string(t.Priority),
		Category: string(t.Category),
	}
	if t.ReminderHandle != "" {
		handle := t.ReminderHandle
		in.NotificationID = &handle
	}
	return in
}
