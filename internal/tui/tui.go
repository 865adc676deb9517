// Package tui provides a terminal user interface for task management.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskmaster/backend"
	"taskmaster/internal/manager"
	"taskmaster/internal/reconcile"
	"taskmaster/internal/utils"
	"taskmaster/internal/views"
)

// Backend is the subset of *manager.Manager the interface drives.
type Backend interface {
	Tasks() []backend.Task
	CreateTask(ctx context.Context, in manager.Input) (backend.Task, error)
	ToggleCompleted(ctx context.Context, id string) (backend.Task, error)
	DeleteTask(ctx context.Context, id string) error
	Sync(ctx context.Context) (*reconcile.Result, error)
}

// Focus is the pane receiving j/k.
type Focus int

const (
	FocusCategories Focus = iota
	FocusTasks
)

// Mode selects how keys are interpreted.
type Mode int

const (
	ModeNormal Mode = iota
	ModeAddTitle
	ModeAddDue
	ModeHelp
	ModeConfirmDelete
)

// categoryTabs is the left pane: "all" followed by every category.
var categoryTabs = func() []string {
	tabs := []string{views.CategoryAll}
	for _, c := range backend.Categories {
		tabs = append(tabs, string(c))
	}
	return tabs
}()

// Model is the bubbletea model: a category pane on the left, the projected
// task list on the right and a status bar. visible is recomputed from the
// backend snapshot after every change.
type Model struct {
	backend Backend
	ctx     context.Context
	now     func() time.Time
	visible []backend.Task

	categoryCursor, taskCursor int
	focus                      Focus
	sortIdx                    int
	showCompleted              bool

	mode       Mode
	textInput  textinput.Model
	draftTitle string
	status     string

	width, height int
	st            styles
}

type styles struct {
	pane, dialog, selected, done, urgent, dim, status lipgloss.Style
}

func boxed(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border)
}

func defaultStyles() styles {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return styles{
		pane:     boxed("240").Padding(0, 1),
		dialog:   boxed("62").Padding(1, 2),
		selected: fg("212").Bold(true),
		done:     fg("240").Strikethrough(true),
		urgent:   fg(views.PriorityColor(backend.PriorityHigh)).Bold(true),
		dim:      fg("241"),
		status:   fg("252").Background(lipgloss.Color("236")),
	}
}

// Message types
type tasksChangedMsg struct{}

type syncedMsg struct {
	result *reconcile.Result
}

type errMsg struct {
	err error
}

type tickMsg time.Time

// Option customizes a Model.
type Option func(*Model)

// WithClock overrides the clock used for urgency, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithSort sets the initial sort key.
func WithSort(key views.SortKey) Option {
	return func(m *Model) {
		for i, k := range views.SortKeys {
			if k == key {
				m.sortIdx = i
			}
		}
	}
}

// New builds the model and takes the first snapshot.
func New(b Backend, opts ...Option) *Model {
	ti := textinput.New()
	ti.CharLimit = 256

	m := &Model{
		backend:   b,
		ctx:       context.Background(),
		now:       time.Now,
		textInput: ti,
		focus:     FocusTasks,
		mode:      ModeNormal,
		st:        defaultStyles(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.refresh()
	return m
}

// Init starts the once-a-minute refresh so urgency follows the clock.
func (m *Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Minute, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) options() views.Options {
	return views.Options{
		Category:      categoryTabs[m.categoryCursor],
		SortKey:       views.SortKeys[m.sortIdx],
		ShowCompleted: m.showCompleted,
	}
}

// refresh re-projects the manager's collection through the current options.
func (m *Model) refresh() {
	m.visible = views.FilterAndSort(m.backend.Tasks(), m.options(), m.now())
	if m.taskCursor >= len(m.visible) {
		m.taskCursor = len(m.visible) - 1
	}
	if m.taskCursor < 0 {
		m.taskCursor = 0
	}
}

func (m *Model) selected() (backend.Task, bool) {
	if len(m.visible) == 0 || m.taskCursor >= len(m.visible) {
		return backend.Task{}, false
	}
	return m.visible[m.taskCursor], true
}

func (m *Model) createTask(in manager.Input) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.backend.CreateTask(m.ctx, in); err != nil {
			return errMsg{err}
		}
		return tasksChangedMsg{}
	}
}

func (m *Model) toggleTask(id string) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.backend.ToggleCompleted(m.ctx, id); err != nil {
			return errMsg{err}
		}
		return tasksChangedMsg{}
	}
}

func (m *Model) deleteTask(id string) tea.Cmd {
	return func() tea.Msg {
		if err := m.backend.DeleteTask(m.ctx, id); err != nil {
			return errMsg{err}
		}
		return tasksChangedMsg{}
	}
}

func (m *Model) syncTasks() tea.Cmd {
	return func() tea.Msg {
		res, err := m.backend.Sync(m.ctx)
		if err != nil {
			return errMsg{utils.ErrRemoteOffline("sync", err)}
		}
		return syncedMsg{res}
	}
}

// Update routes keys by mode; the other messages come from commands.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tasksChangedMsg:
		m.refresh()
		return m, nil

	case syncedMsg:
		m.status = "Synced: " + msg.result.String()
		m.refresh()
		return m, nil

	case errMsg:
		m.status = firstLine(msg.err.Error())
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case tea.KeyMsg:
		switch m.mode {
		case ModeAddTitle, ModeAddDue:
			return m.handleAddMode(msg)
		case ModeHelp:
			return m.handleHelpMode(msg)
		case ModeConfirmDelete:
			return m.handleConfirmDeleteMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	return m, nil
}

func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		if m.focus == FocusCategories {
			m.focus = FocusTasks
		} else {
			m.focus = FocusCategories
		}

	case "up", "k":
		if m.focus == FocusCategories {
			if m.categoryCursor > 0 {
				m.categoryCursor--
				m.refresh()
			}
		} else if m.taskCursor > 0 {
			m.taskCursor--
		}

	case "down", "j":
		if m.focus == FocusCategories {
			if m.categoryCursor < len(categoryTabs)-1 {
				m.categoryCursor++
				m.refresh()
			}
		} else if m.taskCursor < len(m.visible)-1 {
			m.taskCursor++
		}

	case "c":
		m.categoryCursor = (m.categoryCursor + 1) % len(categoryTabs)
		m.refresh()

	case "s":
		m.sortIdx = (m.sortIdx + 1) % len(views.SortKeys)
		m.status = "Sort: " + string(views.SortKeys[m.sortIdx])
		m.refresh()

	case "h":
		m.showCompleted = !m.showCompleted
		m.refresh()

	case "a":
		m.mode = ModeAddTitle
		m.draftTitle = ""
		m.textInput.SetValue("")
		m.textInput.Placeholder = "Task title"
		m.textInput.Focus()
		return m, textinput.Blink

	case " ", "x", "enter":
		if task, ok := m.selected(); ok {
			return m, m.toggleTask(task.ID)
		}

	case "d":
		if _, ok := m.selected(); ok {
			m.mode = ModeConfirmDelete
		}

	case "r":
		m.status = "Syncing..."
		return m, m.syncTasks()

	case "?":
		m.mode = ModeHelp
	}

	return m, nil
}

// handleAddMode collects the title, then the due date. The due field
// accepts the same forms as the add command's --due flag.
func (m *Model) handleAddMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = ModeNormal
		m.textInput.Blur()
		return m, nil

	case tea.KeyEnter:
		value := strings.TrimSpace(m.textInput.Value())
		if m.mode == ModeAddTitle {
			if value == "" {
				m.status = "Title is required"
				return m, nil
			}
			m.draftTitle = value
			m.mode = ModeAddDue
			m.textInput.SetValue("")
			m.textInput.Placeholder = "tomorrow 09:00"
			return m, nil
		}

		due, err := utils.ParseDueFlag(value)
		if err != nil || due == nil {
			m.status = "Invalid due date: " + value
			return m, nil
		}
		m.mode = ModeNormal
		m.textInput.Blur()
		in := manager.Input{Title: m.draftTitle, DueDate: *due}
		if cat := categoryTabs[m.categoryCursor]; cat != views.CategoryAll {
			in.Category = backend.Category(cat)
		}
		return m, m.createTask(in)
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleHelpMode(_ tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mode = ModeNormal
	return m, nil
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		if task, ok := m.selected(); ok {
			return m, m.deleteTask(task.ID)
		}
	case "n", "N", "esc":
		m.mode = ModeNormal
	}
	return m, nil
}

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAddTitle, ModeAddDue:
		return m.renderAddDialog()
	case ModeHelp:
		return m.renderHelpDialog()
	case ModeConfirmDelete:
		return m.renderConfirmDeleteDialog()
	}

	categoryWidth := 16
	taskWidth := m.width - categoryWidth - 4

	categoryPane := m.st.pane.Width(categoryWidth).Height(m.height - 4).
		Render(m.renderCategoryPane(categoryWidth - 4))
	taskPane := m.st.pane.Width(taskWidth).Height(m.height - 4).
		Render(m.renderTaskPane(taskWidth - 4))

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, categoryPane, taskPane))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderCategoryPane(width int) string {
	var b strings.Builder
	b.WriteString("Categories\n")
	b.WriteString(strings.Repeat("─", max(width, 1)))
	b.WriteString("\n")

	for i, name := range categoryTabs {
		cursor := " "
		if i == m.categoryCursor {
			cursor = ">"
			if m.focus == FocusCategories {
				name = m.st.selected.Render(name)
			}
		}
		b.WriteString(cursor + " " + name + "\n")
	}
	return b.String()
}

func (m *Model) renderTaskPane(width int) string {
	now := m.now()
	var b strings.Builder
	header := "Tasks"
	if n := views.UrgentCount(m.backend.Tasks(), now); n > 0 {
		header += "  " + m.st.urgent.Render(fmt.Sprintf("%d urgent", n))
	}
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(width, 1)))
	b.WriteString("\n")

	if len(m.visible) == 0 {
		b.WriteString("No tasks\n")
		return b.String()
	}

	for i, task := range m.visible {
		cursor := " "
		if i == m.taskCursor && m.focus == FocusTasks {
			cursor = ">"
		}

		box := "[ ]"
		if task.Completed {
			box = "[✓]"
		}
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(views.PriorityColor(task.Priority))).Render("●")

		title := task.Title
		switch {
		case task.Completed:
			title = m.st.done.Render(title)
		case i == m.taskCursor && m.focus == FocusTasks:
			title = m.st.selected.Render(title)
		}

		due := "no due date"
		if task.HasDueDate() {
			due = task.DueDate.Format("Jan 02 15:04")
		}
		if views.Classify(task, now) == views.Overdue {
			due = m.st.urgent.Render(due + " overdue")
		} else if views.IsUrgent(task, now) {
			due = m.st.urgent.Render(due)
		}

		b.WriteString(fmt.Sprintf("%s %s %s %s  %s\n", cursor, box, dot, title, m.st.dim.Render(due)))
	}
	return b.String()
}

func (m *Model) renderStatusBar() string {
	left := fmt.Sprintf("%s | sort: %s", categoryTabs[m.categoryCursor], views.SortKeys[m.sortIdx])
	if m.showCompleted {
		left += " | +done"
	}
	if m.status != "" {
		left += " | " + m.status
	}

	right := "q:quit  ?:help"
	padding := m.width - lipgloss.Width(left) - len(right) - 2
	if padding < 1 {
		padding = 1
	}
	return m.st.status.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderAddDialog() string {
	title := "Add New Task"
	if m.mode == ModeAddDue {
		title = "Due date for: " + m.draftTitle
	}
	hint := "Enter: next  Esc: cancel"
	if m.mode == ModeAddDue {
		hint = "Enter: create  Esc: cancel"
	}
	body := title + "\n\n" + m.textInput.View() + "\n\n" + m.st.dim.Render(hint)
	if m.status != "" {
		body += "\n" + m.status
	}
	return m.centerDialog(m.st.dialog.Render(body))
}

// keyHelp is the help dialog, grouped by section.
var keyHelp = []struct {
	section string
	keys    [][2]string
}{
	{"Navigation", [][2]string{{"j/↓", "Move down"}, {"k/↑", "Move up"}, {"Tab", "Switch focus between categories/tasks"}}},
	{"Actions", [][2]string{
		{"a", "Add new task (title, then due date)"},
		{"space", "Toggle task completion"},
		{"d", "Delete task (with confirm)"},
		{"c", "Next category"},
		{"s", "Next sort key"},
		{"h", "Show/hide completed tasks"},
		{"r", "Sync with the server"},
	}},
	{"General", [][2]string{{"?", "Show this help"}, {"q", "Quit"}}},
}

func (m *Model) renderHelpDialog() string {
	var b strings.Builder
	b.WriteString("Key Bindings\n")
	for _, group := range keyHelp {
		b.WriteString("\n" + group.section + ":\n")
		for _, k := range group.keys {
			fmt.Fprintf(&b, "  %-6s %s\n", k[0], k[1])
		}
	}
	b.WriteString("\n" + m.st.dim.Render("Press any key to close"))
	return m.centerDialog(m.st.dialog.Render(b.String()))
}

func (m *Model) renderConfirmDeleteDialog() string {
	prompt := "Delete selected task?"
	if task, ok := m.selected(); ok {
		prompt = "Delete \"" + task.Title + "\"?"
	}
	dialog := m.st.dialog.Render(prompt + "\n\n" + m.st.dim.Render("y: yes  n: no"))
	return m.centerDialog(dialog)
}

func (m *Model) centerDialog(dialog string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, dialog)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
