package views

import (
	"fmt"
	"io"
	"strings"
	"time"

	"taskmaster/backend"
)

// Renderer handles rendering tasks using a view configuration
type Renderer struct {
	view   *View
	writer io.Writer
	now    time.Time
}

// NewRenderer creates a new view renderer. now decides urgency markers.
func NewRenderer(view *View, writer io.Writer, now time.Time) *Renderer {
	return &Renderer{view: view, writer: writer, now: now}
}

// Render filters and sorts tasks with the view's options and prints one line per task.
func (r *Renderer) Render(tasks []backend.Task) error {
	opts, err := r.view.Options()
	if err != nil {
		return err
	}
	for _, t := range FilterAndSort(tasks, opts, r.now) {
		r.renderLine(t)
	}
	return nil
}

func (r *Renderer) renderLine(t backend.Task) {
	parts := make([]string, 0, len(r.view.Fields))
	for _, field := range r.view.Fields {
		parts = append(parts, r.formatField(t, field))
	}
	_, _ = fmt.Fprintf(r.writer, "  %s\n", strings.TrimRight(strings.Join(parts, " "), " "))
}

// formatField formats a task field according to field configuration
func (r *Renderer) formatField(t backend.Task, field Field) string {
	var value string

	switch field.Name {
	case "status":
		value = formatStatus(Classify(t, r.now))
	case "title":
		value = t.Title
	case "priority":
		value = string(t.Priority)
	case "category":
		value = string(t.Category)
	case "due_date":
		value = formatDateTime(t.DueDate, field.Format)
	case "created":
		value = formatDateTime(t.CreatedAt, field.Format)
	case "updated":
		if t.UpdatedAt != nil {
			value = formatDateTime(*t.UpdatedAt, field.Format)
		}
	case "id":
		value = t.ID
	case "reminder":
		if t.ReminderHandle != "" {
			value = "armed"
		}
	}

	if field.Width > 0 {
		if len(value) > field.Width && field.Truncate {
			if field.Width > 3 && field.Name != "id" {
				value = value[:field.Width-3] + "..."
			} else {
				value = value[:field.Width]
			}
		}
		switch field.Align {
		case "right":
			value = fmt.Sprintf("%*s", field.Width, value)
		case "center":
			pad := field.Width - len(value)
			if pad > 0 {
				leftPad := pad / 2
				value = strings.Repeat(" ", leftPad) + value + strings.Repeat(" ", pad-leftPad)
			}
		default:
			value = fmt.Sprintf("%-*s", field.Width, value)
		}
	}

	return value
}

// formatStatus formats a classification for display
func formatStatus(c Classification) string {
	switch c {
	case Done:
		return "[DONE]"
	case Overdue:
		return "[OVERDUE]"
	case DueToday:
		return "[TODAY]"
	default:
		return "[TODO]"
	}
}

// formatDateTime formats a time.Time value for display
func formatDateTime(t time.Time, format string) string {
	if t.IsZero() {
		return ""
	}
	if format == "" {
		format = DefaultDateFormat
	}
	return t.Format(format)
}

// RenderTasksWithView is a convenience function for rendering tasks with a view
func RenderTasksWithView(tasks []backend.Task, view *View, writer io.Writer, now time.Time) error {
	return NewRenderer(view, writer, now).Render(tasks)
}

// markerLetter abbreviates a priority for the text calendar.
func markerLetter(p backend.Priority) string {
	switch p {
	case backend.PriorityHigh:
		return "H"
	case backend.PriorityMedium:
		return "M"
	case backend.PriorityLow:
		return "L"
	}
	return "?"
}

// RenderCalendar prints a month grid for the month containing month, in
// month's location. Days with due tasks show one letter per distinct
// priority (H, M, L); the day of now is bracketed.
func RenderCalendar(w io.Writer, tasks []backend.Task, month, now time.Time) {
	loc := month.Location()
	markers := CalendarMarkers(tasks, loc)
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	days := first.AddDate(0, 1, -1).Day()

	_, _ = fmt.Fprintf(w, "%s\n", first.Format("January 2006"))
	_, _ = fmt.Fprintln(w, " Sun     Mon     Tue     Wed     Thu     Fri     Sat")

	var cells []string
	for i := 0; i < int(first.Weekday()); i++ {
		cells = append(cells, strings.Repeat(" ", 7))
	}
	for d := 1; d <= days; d++ {
		day := time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, loc)
		var letters string
		for _, m := range markers[day.Format(DefaultDateFormat)] {
			letters += markerLetter(m.Priority)
		}
		num := fmt.Sprintf(" %2d", d)
		if sameDay(day, now.In(loc)) {
			num = fmt.Sprintf("[%2d]", d)
		}
		cells = append(cells, fmt.Sprintf("%-4s%-3s", num, letters))
	}

	for i := 0; i < len(cells); i += 7 {
		end := i + 7
		if end > len(cells) {
			end = len(cells)
		}
		_, _ = fmt.Fprintln(w, strings.TrimRight(strings.Join(cells[i:end], " "), " "))
	}
}

// RenderDay prints the tasks due on date, urgent first.
func RenderDay(w io.Writer, tasks []backend.Task, date, now time.Time) {
	due := TasksForDate(tasks, date)
	_, _ = fmt.Fprintf(w, "Tasks for %s:\n", date.Format("Monday, January 2, 2006"))
	if len(due) == 0 {
		_, _ = fmt.Fprintln(w, "  No tasks scheduled for this date")
		return
	}
	r := NewRenderer(DefaultView(), w, now)
	for _, t := range FilterAndSort(due, Options{Category: CategoryAll, SortKey: SortDueDate, ShowCompleted: true}, now) {
		r.renderLine(t)
	}
}
