package views

import (
	"fmt"
	"strings"

	"taskmaster/backend"
)

// DefaultDateFormat is the standard date format used throughout the views package
const DefaultDateFormat = "2006-01-02"

// CategoryAll disables category filtering.
const CategoryAll = "all"

// SortKey selects the ordering inside the urgent and non-urgent partitions.
type SortKey string

const (
	SortDueDate  SortKey = "due_date" // ascending
	SortPriority SortKey = "priority" // high first
	SortCreated  SortKey = "created"  // newest first
)

// SortKeys lists the valid sort keys in the order UIs cycle through them.
var SortKeys = []SortKey{SortDueDate, SortPriority, SortCreated}

// ParseSortKey converts user input into a SortKey. "due" and "date" are accepted for due_date.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "due", "date", "due_date", "duedate":
		return SortDueDate, nil
	case "priority":
		return SortPriority, nil
	case "created", "created_at", "createdat":
		return SortCreated, nil
	}
	return "", fmt.Errorf("invalid sort key %q (must be due_date, priority or created)", s)
}

// Options parameterizes FilterAndSort.
type Options struct {
	Category      string // "all" or a backend.Category
	SortKey       SortKey
	ShowCompleted bool
}

// View is a named, reusable set of list options plus the columns to show.
type View struct {
	Name          string  `yaml:"name"`
	Description   string  `yaml:"description,omitempty"`
	Category      string  `yaml:"category,omitempty"`
	Sort          string  `yaml:"sort,omitempty"`
	ShowCompleted bool    `yaml:"show_completed,omitempty"`
	Fields        []Field `yaml:"fields"`
}

// Field represents a column in a view
type Field struct {
	Name     string `yaml:"name"`
	Width    int    `yaml:"width,omitempty"`
	Align    string `yaml:"align,omitempty"`  // left, center, right
	Format   string `yaml:"format,omitempty"` // layout for dates
	Truncate bool   `yaml:"truncate,omitempty"`
}

// Options converts the view into FilterAndSort options.
func (v *View) Options() (Options, error) {
	key, err := ParseSortKey(v.Sort)
	if err != nil {
		return Options{}, err
	}
	cat := strings.ToLower(strings.TrimSpace(v.Category))
	if cat == "" {
		cat = CategoryAll
	}
	if cat != CategoryAll && !backend.Category(cat).Valid() {
		return Options{}, fmt.Errorf("invalid category %q", v.Category)
	}
	return Options{Category: cat, SortKey: key, ShowCompleted: v.ShowCompleted}, nil
}

// AvailableFields returns the list of valid field names
var AvailableFields = []string{
	"status",
	"title",
	"priority",
	"category",
	"due_date",
	"created",
	"updated",
	"id",
	"reminder",
}

// DefaultView returns the built-in default view
func DefaultView() *View {
	return &View{
		Name:        "default",
		Description: "Open tasks, urgent first, by due date",
		Sort:        string(SortDueDate),
		Fields: []Field{
			{Name: "status", Width: 10},
			{Name: "id", Width: 8, Truncate: true},
			{Name: "title", Width: 36, Truncate: true},
			{Name: "priority", Width: 8},
			{Name: "category", Width: 9},
			{Name: "due_date", Width: 16, Format: "2006-01-02 15:04"},
		},
	}
}

// AllView returns the built-in 'all' view showing every task and field
func AllView() *View {
	return &View{
		Name:          "all",
		Description:   "Every task including completed ones, with all fields",
		Sort:          string(SortDueDate),
		ShowCompleted: true,
		Fields: []Field{
			{Name: "status"},
			{Name: "id"},
			{Name: "title"},
			{Name: "priority"},
			{Name: "category"},
			{Name: "due_date", Format: "2006-01-02 15:04"},
			{Name: "created"},
			{Name: "updated"},
			{Name: "reminder"},
		},
	}
}
