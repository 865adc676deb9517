package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task represents a todo item held in the local cache
type Task struct {
	ID             string
	Title          string
	DueDate        time.Time // zero when the remote record carried no parseable date
	Priority       Priority
	Category       Category
	Completed      bool
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	ReminderHandle string // empty when no alert is armed
}

// HasDueDate reports whether the task carries a usable due date.
func (t Task) HasDueDate() bool {
	return !t.DueDate.IsZero()
}

// Priority ranks a task. High sorts before medium before low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists the valid priorities from highest to lowest.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Rank returns 0 for high, 1 for medium, 2 for low and 3 for anything else.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p.Rank() < 3
}

// Category partitions tasks. It carries no ordering.
type Category string

const (
	CategoryWork     Category = "work"
	CategoryPersonal Category = "personal"
	CategoryStudy    Category = "study"
)

// Categories lists the valid categories.
var Categories = []Category{CategoryWork, CategoryPersonal, CategoryStudy}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryWork, CategoryPersonal, CategoryStudy:
		return true
	}
	return false
}

// ParsePriority converts user input into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q (must be high, medium or low)", s)
	}
	return p, nil
}

// ParseCategory converts user input into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("invalid category %q (must be work, personal or study)", s)
	}
	return c, nil
}

// RemoteTask is a task record as the remote store serves it.
type RemoteTask struct {
	ID             string  `json:"id,omitempty"`
	Title          string  `json:"title"`
	DueDate        string  `json:"dueDate"`
	Priority       string  `json:"priority"`
	Category       string  `json:"category"`
	Completed      bool    `json:"completed"`
	CreatedAt      string  `json:"createdAt"`
	UpdatedAt      *string `json:"updatedAt,omitempty"`
	UserID         *string `json:"userId,omitempty"`
	NotificationID *string `json:"notificationId,omitempty"`
}

// RemoteTaskInput is the body of a remote create request.
type RemoteTaskInput struct {
	Title          string  `json:"title"`
	DueDate        string  `json:"dueDate"`
	Priority       string  `json:"priority"`
	Category       string  `json:"category"`
	NotificationID *string `json:"notificationId,omitempty"`
}

// TaskUpdate carries the fields of a partial remote update. Nil fields are left untouched.
type TaskUpdate struct {
	Title          *string `json:"title,omitempty"`
	DueDate        *string `json:"dueDate,omitempty"`
	Priority       *string `json:"priority,omitempty"`
	Category       *string `json:"category,omitempty"`
	Completed      *bool   `json:"completed,omitempty"`
	NotificationID *string `json:"notificationId,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (u TaskUpdate) IsEmpty() bool {
	return u.Title == nil && u.DueDate == nil && u.Priority == nil &&
		u.Category == nil && u.Completed == nil && u.NotificationID == nil
}

// RemoteStore is the remote source of truth the cache reconciles against.
// Every call may fail; callers treat a failure as "local state stands".
type RemoteStore interface {
	FetchAll(ctx context.Context) ([]RemoteTask, error)
	Create(ctx context.Context, in RemoteTaskInput) (*RemoteTask, error)
	Update(ctx context.Context, id string, fields TaskUpdate) error
	Delete(ctx context.Context, id string) error
}

// Persistence stores and restores the serialized task collection.
type Persistence interface {
	// Load returns nil, nil when nothing has been persisted yet.
	Load(ctx context.Context) ([]Task, error)
	Save(ctx context.Context, tasks []Task) error
	Close() error
}

// GenerateID generates a unique identifier using UUID v4.
// This is used for tasks created locally before the remote assigns an id.
func GenerateID() string {
	return uuid.New().String()
}

// surrogateNamespace scopes surrogate ids so they never collide with other UUID v5 users.
var surrogateNamespace = uuid.MustParse("6f1c2f7e-8d4b-4b0e-9a51-3d0f7c1b2a90")

// SurrogateID derives a stable id for a remote record that arrived without one.
// The same record content and occurrence index always yield the same id, so
// repeated reconciliations of one snapshot agree, while identical records in
// one snapshot are told apart by their occurrence.
func SurrogateID(r RemoteTask, occurrence int) string {
	key := strings.Join([]string{r.Title, r.DueDate, r.CreatedAt, r.Priority, r.Category, fmt.Sprint(occurrence)}, "\x1f")
	return uuid.NewSHA1(surrogateNamespace, []byte(key)).String()
}

// Clone returns a copy of tasks that shares no mutable state with the input.
func Clone(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	copy(out, tasks)
	for i := range out {
		if out[i].UpdatedAt != nil {
			u := *out[i].UpdatedAt
			out[i].UpdatedAt = &u
		}
	}
	return out
}
