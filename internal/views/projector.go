package views

import (
	"sort"
	"time"

	"taskmaster/backend"
)

// IsUrgent reports whether t is not completed and its due date has arrived.
// A task due exactly at now is urgent. Tasks without a due date never are.
func IsUrgent(t backend.Task, now time.Time) bool {
	return !t.Completed && t.HasDueDate() && !t.DueDate.After(now)
}

// Classification is a display-only refinement of urgency.
type Classification string

const (
	Overdue  Classification = "overdue"   // urgent, due before today
	DueToday Classification = "due_today" // urgent, due earlier today
	Upcoming Classification = "upcoming"
	Done     Classification = "done"
)

// Classify sub-classifies t relative to now.
func Classify(t backend.Task, now time.Time) Classification {
	switch {
	case t.Completed:
		return Done
	case !IsUrgent(t, now):
		return Upcoming
	case sameDay(t.DueDate.In(now.Location()), now):
		return DueToday
	default:
		return Overdue
	}
}

// FilterAndSort drops completed tasks unless opts.ShowCompleted, drops tasks
// outside opts.Category unless it is "all", puts urgent tasks before the
// rest and orders each group by opts.SortKey. Ties keep their input order.
func FilterAndSort(tasks []backend.Task, opts Options, now time.Time) []backend.Task {
	out := make([]backend.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed && !opts.ShowCompleted {
			continue
		}
		if opts.Category != "" && opts.Category != CategoryAll && string(t.Category) != opts.Category {
			continue
		}
		out = append(out, t)
	}

	less := lessFor(opts.SortKey)
	sort.SliceStable(out, func(i, j int) bool {
		ui, uj := IsUrgent(out[i], now), IsUrgent(out[j], now)
		if ui != uj {
			return ui
		}
		return less(out[i], out[j])
	})
	return out
}

func lessFor(key SortKey) func(a, b backend.Task) bool {
	switch key {
	case SortPriority:
		return func(a, b backend.Task) bool { return a.Priority.Rank() < b.Priority.Rank() }
	case SortCreated:
		return func(a, b backend.Task) bool { return a.CreatedAt.After(b.CreatedAt) }
	default:
		// unknown due dates sort last
		return func(a, b backend.Task) bool {
			if a.HasDueDate() != b.HasDueDate() {
				return a.HasDueDate()
			}
			return a.DueDate.Before(b.DueDate)
		}
	}
}

// TasksForDate returns the tasks due on the calendar day of date, compared
// in date's location. Tasks without a due date are skipped.
func TasksForDate(tasks []backend.Task, date time.Time) []backend.Task {
	var out []backend.Task
	for _, t := range tasks {
		if t.HasDueDate() && sameDay(t.DueDate.In(date.Location()), date) {
			out = append(out, t)
		}
	}
	return out
}

// Marker is one calendar dot: a priority present on a day.
type Marker struct {
	Priority backend.Priority `json:"priority"`
	Color    string           `json:"color"`
}

// PriorityColor maps a priority to its marker color.
func PriorityColor(p backend.Priority) string {
	switch p {
	case backend.PriorityHigh:
		return "#EF4444"
	case backend.PriorityMedium:
		return "#F59E0B"
	case backend.PriorityLow:
		return "#10B981"
	default:
		return "#9CA3AF"
	}
}

// CalendarMarkers maps each calendar day ("2006-01-02") in loc to one
// marker per distinct priority due that day, highest priority first.
// A nil loc means time.Local.
func CalendarMarkers(tasks []backend.Task, loc *time.Location) map[string][]Marker {
	if loc == nil {
		loc = time.Local
	}
	present := make(map[string]map[backend.Priority]bool)
	for _, t := range tasks {
		if !t.HasDueDate() {
			continue
		}
		day := t.DueDate.In(loc).Format(DefaultDateFormat)
		if present[day] == nil {
			present[day] = make(map[backend.Priority]bool)
		}
		present[day][t.Priority] = true
	}

	markers := make(map[string][]Marker, len(present))
	for day, set := range present {
		for _, p := range backend.Priorities {
			if set[p] {
				markers[day] = append(markers[day], Marker{Priority: p, Color: PriorityColor(p)})
			}
		}
		var unknown []string
		for p := range set {
			if !p.Valid() {
				unknown = append(unknown, string(p))
			}
		}
		sort.Strings(unknown)
		for _, p := range unknown {
			markers[day] = append(markers[day], Marker{Priority: backend.Priority(p), Color: PriorityColor(backend.Priority(p))})
		}
	}
	return markers
}

// UrgentCount counts the urgent tasks.
func UrgentCount(tasks []backend.Task, now time.Time) int {
	n := 0
	for _, t := range tasks {
		if IsUrgent(t, now) {
			n++
		}
	}
	return n
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
