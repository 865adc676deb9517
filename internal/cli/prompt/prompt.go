// Package prompt handles interactive prompts with no-prompt mode support.
// It provides filtered task selection and an interactive add mode with
// field validation.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/utils"
	"taskmaster/internal/views"
)

// Sentinel errors for prompt operations.
var (
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrNoPromptMode       = errors.New("interactive prompts disabled (--no-prompt / -y)")
	ErrNoTasks            = errors.New("no tasks available")
	ErrNoMatches          = errors.New("no tasks match the filter")
)

// TaskSelector lets the user narrow a task list by title and pick one.
type TaskSelector struct {
	Tasks    []backend.Task
	Prompt   string
	Reader   io.Reader
	Writer   io.Writer
	NoPrompt bool
	Now      time.Time
}

// session reads one answer per line and writes prompts to w.
type session struct {
	sc *bufio.Scanner
	w  io.Writer
}

func newSession(r io.Reader, w io.Writer) *session {
	if w == nil {
		w = io.Discard
	}
	return &session{sc: bufio.NewScanner(r), w: w}
}

// ask prints question and returns the trimmed answer. ok is false at end of input.
func (s *session) ask(question string) (answer string, ok bool) {
	_, _ = fmt.Fprint(s.w, question)
	if !s.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.sc.Text()), true
}

func (s *session) say(format string, args ...any) {
	_, _ = fmt.Fprintf(s.w, format+"\n", args...)
}

// Run picks a task. A single task is returned without asking anything;
// otherwise the user types a title filter and then a number from the
// filtered list. A filter matching exactly one task selects it.
func (s *TaskSelector) Run() (*backend.Task, error) {
	switch {
	case s.NoPrompt:
		return nil, ErrNoPromptMode
	case len(s.Tasks) == 0:
		return nil, ErrNoTasks
	case len(s.Tasks) == 1:
		return &s.Tasks[0], nil
	}

	now := s.Now
	if now.IsZero() {
		now = time.Now()
	}
	q := newSession(s.Reader, s.Writer)

	filter, ok := q.ask(s.Prompt + "\nFilter (or press Enter to show all): ")
	if !ok {
		return nil, ErrSelectionCancelled
	}
	matches := matchTitle(s.Tasks, filter)
	switch len(matches) {
	case 0:
		return nil, ErrNoMatches
	case 1:
		q.say("Auto-selected: %s", matches[0].Title)
		return &matches[0], nil
	}

	for i, t := range matches {
		q.say("  %d) %s", i+1, formatTaskLine(t, now))
	}
	answer, ok := q.ask("Select (0 to cancel): ")
	if !ok {
		return nil, ErrSelectionCancelled
	}
	n, err := strconv.Atoi(answer)
	switch {
	case err != nil:
		return nil, fmt.Errorf("invalid selection: %s", answer)
	case n == 0:
		return nil, ErrSelectionCancelled
	case n < 0 || n > len(matches):
		return nil, fmt.Errorf("selection out of range: %d", n)
	}
	return &matches[n-1], nil
}

// matchTitle keeps the tasks whose title contains filter, ignoring case.
func matchTitle(tasks []backend.Task, filter string) []backend.Task {
	filter = strings.ToLower(filter)
	var out []backend.Task
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), filter) {
			out = append(out, t)
		}
	}
	return out
}

// formatTaskLine shows the title followed by state, priority, category and due date.
func formatTaskLine(t backend.Task, now time.Time) string {
	meta := []string{stateLabel(views.Classify(t, now)), string(t.Priority), string(t.Category)}
	if t.HasDueDate() {
		meta = append(meta, "due: "+t.DueDate.Format("2006-01-02 15:04"))
	}
	return fmt.Sprintf("%s [%s]", t.Title, strings.Join(meta, ", "))
}

func stateLabel(c views.Classification) string {
	switch c {
	case views.Done:
		return "done"
	case views.Overdue:
		return "overdue"
	case views.DueToday:
		return "due today"
	default:
		return "open"
	}
}

// FilterTasksByAction returns the tasks worth offering for action.
// "complete" offers only open tasks unless showAll is set; every other
// action offers everything.
func FilterTasksByAction(tasks []backend.Task, action string, showAll bool) []backend.Task {
	if showAll || action != "complete" {
		result := make([]backend.Task, len(tasks))
		copy(result, tasks)
		return result
	}

	var filtered []backend.Task
	for _, t := range tasks {
		if !t.Completed {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// AddFields holds the field values collected during interactive add mode.
type AddFields struct {
	Title    string
	DueDate  time.Time
	Priority backend.Priority
	Category backend.Category
}

// InteractiveAdder asks for each task field in turn when add is run without a title.
type InteractiveAdder struct {
	Reader   io.Reader
	Writer   io.Writer
	NoPrompt bool
}

// Run prompts for title and due date (both required), then priority and
// category (empty keeps the default). Invalid entries are asked again.
func (a *InteractiveAdder) Run() (*AddFields, error) {
	if a.NoPrompt {
		return nil, ErrNoPromptMode
	}
	q := newSession(a.Reader, a.Writer)
	fields := &AddFields{}

	for fields.Title == "" {
		title, ok := q.ask("Title (required): ")
		if !ok {
			return nil, errors.New("no input for title")
		}
		if fields.Title = title; title == "" {
			q.say("Title cannot be empty.")
		}
	}

	for fields.DueDate.IsZero() {
		input, ok := q.ask("Due (YYYY-MM-DD [HH:MM], today, tomorrow, +Nd): ")
		if !ok {
			return nil, errors.New("no input for due date")
		}
		if input == "" {
			q.say("Due date cannot be empty.")
			continue
		}
		due, err := utils.ParseDueFlag(input)
		if err != nil {
			q.say("Invalid date: %s", input)
			continue
		}
		fields.DueDate = *due
	}

	fields.Priority = askOptional(q, "Priority (high, medium, low; default medium): ",
		"Invalid priority: must be high, medium or low", backend.ParsePriority)
	fields.Category = askOptional(q, "Category (work, personal, study; default personal): ",
		"Invalid category: must be work, personal or study", backend.ParseCategory)
	return fields, nil
}

// askOptional repeats question until parse accepts the answer. An empty
// answer or end of input leaves the zero value.
func askOptional[T any](q *session, question, invalid string, parse func(string) (T, error)) T {
	var zero T
	for {
		input, ok := q.ask(question)
		if !ok || input == "" {
			return zero
		}
		v, err := parse(input)
		if err == nil {
			return v
		}
		q.say("%s", invalid)
	}
}
