package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskmaster/backend"
	"taskmaster/internal/analytics"
	"taskmaster/internal/cli/prompt"
	"taskmaster/internal/manager"
	"taskmaster/internal/utils"
	"taskmaster/internal/views"
)

// taskJSON is the JSON form of a task in CLI output.
type taskJSON struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	DueDate   string  `json:"dueDate,omitempty"`
	Priority  string  `json:"priority"`
	Category  string  `json:"category"`
	Completed bool    `json:"completed"`
	Urgent    bool    `json:"urgent"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt *string `json:"updatedAt,omitempty"`
	Reminder  bool    `json:"reminder"`
}

func toTaskJSON(t backend.Task, now time.Time) taskJSON {
	out := taskJSON{
		ID:        t.ID,
		Title:     t.Title,
		Priority:  string(t.Priority),
		Category:  string(t.Category),
		Completed: t.Completed,
		Urgent:    views.IsUrgent(t, now),
		CreatedAt: backend.FormatTimestamp(t.CreatedAt),
		Reminder:  t.ReminderHandle != "",
	}
	if t.HasDueDate() {
		out.DueDate = backend.FormatTimestamp(t.DueDate)
	}
	if t.UpdatedAt != nil {
		u := backend.FormatTimestamp(*t.UpdatedAt)
		out.UpdatedAt = &u
	}
	return out
}

func newAddCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [title...]",
		Short: "Add a task",
		Long:  "Add a task with a due date. A reminder is scheduled ahead of the due date and the task is sent to the remote server when one is configured. Without a title the fields are asked for one by one.",
		Example: `  taskmaster add Pay rent --due "2026-02-01 09:00" -p high
  taskmaster add Read chapter 4 --due tomorrow -c study`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := addInput(cmd, cfg, args, stdout)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return doAdd(cmd.Context(), a, in, stdout, isJSON(cmd, a.appCfg))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("due", "", "Due date: YYYY-MM-DD [HH:MM], today, tomorrow, +Nd [HH:MM]")
	cmd.Flags().StringP("priority", "p", "", "Priority: high, medium or low (default medium)")
	cmd.Flags().StringP("category", "c", "", "Category: work, personal or study (default personal)")
	return cmd
}

// addInput builds the new task from arguments and flags, or asks for each
// field when no title is given and prompts are allowed.
func addInput(cmd *cobra.Command, cfg *Config, args []string, stdout io.Writer) (manager.Input, error) {
	due, _ := cmd.Flags().GetString("due")
	priority, _ := cmd.Flags().GetString("priority")
	category, _ := cmd.Flags().GetString("category")

	if len(args) == 0 {
		adder := &prompt.InteractiveAdder{Reader: cmd.InOrStdin(), Writer: stdout, NoPrompt: cfg.NoPrompt}
		fields, err := adder.Run()
		if errors.Is(err, prompt.ErrNoPromptMode) {
			return manager.Input{}, utils.ErrInvalidTask("title is required")
		}
		if err != nil {
			return manager.Input{}, err
		}
		return manager.Input{Title: fields.Title, DueDate: fields.DueDate, Priority: fields.Priority, Category: fields.Category}, nil
	}
	if strings.TrimSpace(due) == "" {
		return manager.Input{}, utils.WrapWithSuggestion(errors.New(`required flag(s) "due" not set`),
			"Add --due, e.g. --due tomorrow or --due \"2026-02-01 09:00\"")
	}

	in := manager.Input{Title: strings.Join(args, " ")}
	d, err := utils.ParseDueFlag(due)
	if err != nil {
		return in, err
	}
	in.DueDate = *d
	if priority != "" {
		if in.Priority, err = backend.ParsePriority(priority); err != nil {
			return in, utils.ErrInvalidTask(err.Error())
		}
	}
	if category != "" {
		if in.Category, err = backend.ParseCategory(category); err != nil {
			return in, utils.ErrInvalidTask(err.Error())
		}
	}
	return in, nil
}

// doAdd creates the task and reports it once background writes settle.
func doAdd(ctx context.Context, a *app, in manager.Input, stdout io.Writer, jsonOutput bool) error {
	task, err := a.mgr.CreateTask(ctx, in)
	if err != nil {
		return err
	}
	a.mutated = true
	task = a.settle(task)

	if jsonOutput {
		return writeJSON(stdout, toTaskJSON(task, a.now()))
	}

	_, _ = fmt.Fprintf(stdout, "Created task: %s (%s)\n", task.Title, shortID(task.ID))
	_, _ = fmt.Fprintf(stdout, "  Due: %s  Priority: %s  Category: %s\n",
		task.DueDate.Format("2006-01-02 15:04"), task.Priority, task.Category)
	if task.ReminderHandle != "" {
		_, _ = fmt.Fprintf(stdout, "  Reminder at %s\n", a.reminders.FireAt(task).Format("2006-01-02 15:04"))
	}
	printResult(stdout, a.cfg, ResultActionCompleted)
	return nil
}

func newListCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Long:    "List tasks through a view. Urgent tasks, whose due date has arrived, come first.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := listView(cmd, a)
			if err != nil {
				return err
			}
			return doList(a, view, stdout, isJSON(cmd, a.appCfg))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("view", "v", "", "View to render (default from config)")
	cmd.Flags().StringP("category", "c", "", "Category: all, work, personal or study")
	cmd.Flags().StringP("sort", "s", "", "Sort key: due_date, priority or created")
	cmd.Flags().BoolP("all", "a", false, "Include completed tasks")
	return cmd
}

// listView loads the selected view and applies the flag overrides.
func listView(cmd *cobra.Command, a *app) (*views.View, error) {
	name, _ := cmd.Flags().GetString("view")
	if name == "" {
		name = a.appCfg.DefaultView
	}
	view, err := views.NewLoader(a.cfg.viewsDir(a.appCfg)).LoadView(name)
	if err != nil {
		return nil, utils.WrapWithSuggestion(err, "Use 'taskmaster view list' to see available views")
	}

	if c, _ := cmd.Flags().GetString("category"); c != "" {
		view.Category = c
	}
	if s, _ := cmd.Flags().GetString("sort"); s != "" {
		view.Sort = s
	}
	if all, _ := cmd.Flags().GetBool("all"); all {
		view.ShowCompleted = true
	}
	if _, err := view.Options(); err != nil {
		return nil, utils.ErrInvalidTask(err.Error())
	}
	return view, nil
}

func doList(a *app, view *views.View, stdout io.Writer, jsonOutput bool) error {
	now := a.now()
	tasks := a.mgr.Tasks()
	opts, err := view.Options()
	if err != nil {
		return err
	}

	shown := views.FilterAndSort(tasks, opts, now)
	if jsonOutput {
		out := make([]taskJSON, 0, len(shown))
		for _, t := range shown {
			out = append(out, toTaskJSON(t, now))
		}
		return writeJSON(stdout, out)
	}

	header := fmt.Sprintf("Tasks (%d)", len(shown))
	if n := views.UrgentCount(shown, now); n > 0 {
		header += fmt.Sprintf(", %d urgent", n)
	}
	_, _ = fmt.Fprintln(stdout, header)
	if len(shown) == 0 {
		_, _ = fmt.Fprintln(stdout, "  No tasks")
	} else if err := views.RenderTasksWithView(tasks, view, stdout, now); err != nil {
		return err
	}
	printResult(stdout, a.cfg, ResultInfoOnly)
	return nil
}

func newToggleCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "toggle [id]",
		Aliases: []string{"done"},
		Short:   "Mark a task done or not done",
		Long:    "Flip a task's completed flag. Completing a task cancels its reminder; reopening it schedules a new one. The id may be a unique prefix; without one, an open task is picked interactively (--all offers completed ones too).",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")

			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			id, _, err := pickTask(cmd, a, args, "complete", all, stdout)
			if err != nil || id == "" {
				return err
			}
			return doToggle(cmd.Context(), a, id, stdout, isJSON(cmd, a.appCfg))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolP("all", "a", false, "Offer completed tasks when picking interactively")
	return cmd
}

// pickTask resolves the id argument, or lets the user pick from the tasks
// suited to action. An empty id with a nil error means the user cancelled.
// chose reports whether the user picked from a list.
func pickTask(cmd *cobra.Command, a *app, args []string, action string, all bool, stdout io.Writer) (id string, chose bool, err error) {
	if len(args) == 1 {
		id, err = a.mgr.Resolve(args[0])
		return id, false, err
	}

	now := a.now()
	tasks := views.FilterAndSort(a.mgr.Tasks(), views.Options{Category: views.CategoryAll, SortKey: views.SortDueDate, ShowCompleted: true}, now)
	candidates := prompt.FilterTasksByAction(tasks, action, all)

	selector := &prompt.TaskSelector{
		Tasks:    candidates,
		Prompt:   fmt.Sprintf("Select a task to %s:", action),
		Reader:   cmd.InOrStdin(),
		Writer:   stdout,
		NoPrompt: a.cfg.NoPrompt,
		Now:      now,
	}
	task, err := selector.Run()
	switch {
	case errors.Is(err, prompt.ErrNoPromptMode):
		return "", false, utils.WrapWithSuggestion(errors.New("task id is required"),
			"Pass a task id or prefix; 'taskmaster list' shows them")
	case errors.Is(err, prompt.ErrSelectionCancelled):
		_, _ = fmt.Fprintln(stdout, "Cancelled")
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return task.ID, len(candidates) > 1, nil
}

func doToggle(ctx context.Context, a *app, ref string, stdout io.Writer, jsonOutput bool) error {
	id, err := a.mgr.Resolve(ref)
	if err != nil {
		return err
	}
	task, err := a.mgr.ToggleCompleted(ctx, id)
	if err != nil {
		return err
	}
	a.mutated = true
	task = a.settle(task)

	if jsonOutput {
		return writeJSON(stdout, toTaskJSON(task, a.now()))
	}
	state := "not done"
	if task.Completed {
		state = "done"
	}
	_, _ = fmt.Fprintf(stdout, "Marked %s: %s\n", state, task.Title)
	printResult(stdout, a.cfg, ResultActionCompleted)
	return nil
}

func newDeleteCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete [id]",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Long:    "Delete a task from the remote server and the local list. The id may be a unique prefix; without one, the task is picked interactively.",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			id, chose, err := pickTask(cmd, a, args, "delete", true, stdout)
			if err != nil || id == "" {
				return err
			}
			// Picking from the list already asked the user.
			skip := force || cfg.NoPrompt || chose
			return doDelete(cmd.Context(), a, id, skip, cmd.InOrStdin(), stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolP("force", "f", false, "Delete without confirmation")
	return cmd
}

func doDelete(ctx context.Context, a *app, ref string, skipConfirm bool, stdin io.Reader, stdout io.Writer) error {
	id, err := a.mgr.Resolve(ref)
	if err != nil {
		return err
	}
	task, _ := a.mgr.Lookup(id)

	if !skipConfirm {
		if stdin == nil {
			stdin = os.Stdin
		}
		if !utils.Confirm(stdin, stdout, fmt.Sprintf("Delete task %q?", task.Title)) {
			_, _ = fmt.Fprintln(stdout, "Cancelled")
			return nil
		}
	}

	if err := a.mgr.DeleteTask(ctx, id); err != nil {
		return err
	}
	a.mutated = true
	a.mgr.Wait()

	_, _ = fmt.Fprintf(stdout, "Deleted task: %s\n", task.Title)
	printResult(stdout, a.cfg, ResultActionCompleted)
	return nil
}

func newCalendarCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calendar",
		Aliases: []string{"cal"},
		Short:   "Show a month calendar with due tasks",
		Long:    "Show the month containing --date with a letter per priority on days that have tasks due, followed by that day's tasks.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			date := a.now()
			if s, _ := cmd.Flags().GetString("date"); s != "" {
				d, err := utils.ParseDateFlag(s)
				if err != nil {
					return err
				}
				date = *d
			}
			return doCalendar(a, date, stdout, isJSON(cmd, a.appCfg))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("date", "d", "", "Day to show: YYYY-MM-DD, today, tomorrow, +Nd (default today)")
	return cmd
}

type calendarJSON struct {
	Date    string                    `json:"date"`
	Markers map[string][]views.Marker `json:"markers"`
	Tasks   []taskJSON                `json:"tasks"`
}

func doCalendar(a *app, date time.Time, stdout io.Writer, jsonOutput bool) error {
	now := a.now()
	tasks := a.mgr.Tasks()

	if jsonOutput {
		out := calendarJSON{
			Date:    date.Format(views.DefaultDateFormat),
			Markers: views.CalendarMarkers(tasks, date.Location()),
			Tasks:   []taskJSON{},
		}
		for _, t := range views.TasksForDate(tasks, date) {
			out.Tasks = append(out.Tasks, toTaskJSON(t, now))
		}
		return writeJSON(stdout, out)
	}

	views.RenderCalendar(stdout, tasks, date, now)
	_, _ = fmt.Fprintln(stdout)
	views.RenderDay(stdout, tasks, date, now)
	printResult(stdout, a.cfg, ResultInfoOnly)
	return nil
}

func newStatsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show task statistics",
		Long:  "Show completion statistics for the local task list, or weekly trends with --productivity.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			productivity, _ := cmd.Flags().GetBool("productivity")

			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return doStats(a, productivity, stdout, isJSON(cmd, a.appCfg))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Bool("productivity", false, "Show weekly productivity trends")
	return cmd
}

func doStats(a *app, productivity bool, stdout io.Writer, jsonOutput bool) error {
	now := a.now()
	tasks := a.mgr.Tasks()

	if productivity {
		p := analytics.ComputeProductivity(tasks, now)
		if jsonOutput {
			return writeJSON(stdout, p)
		}
		_, _ = fmt.Fprintln(stdout, "Weekly productivity:")
		for _, w := range p.WeeklyTrends {
			_, _ = fmt.Fprintf(stdout, "  %-8s %s  created %2d  completed %2d  (%.1f%%)\n",
				w.Week, w.StartDate, w.Created, w.Completed, w.CompletionRate)
		}
		printResult(stdout, a.cfg, ResultInfoOnly)
		return nil
	}

	s := analytics.Compute(tasks, now)
	if jsonOutput {
		return writeJSON(stdout, s)
	}

	o := s.Overview
	_, _ = fmt.Fprintln(stdout, "Overview:")
	_, _ = fmt.Fprintf(stdout, "  Total: %d  Completed: %d  Pending: %d\n", o.TotalTasks, o.CompletedTasks, o.PendingTasks)
	_, _ = fmt.Fprintf(stdout, "  Overdue: %d  Due today: %d  Due this week: %d\n", o.OverdueTasks, o.TodayTasks, o.WeekTasks)
	_, _ = fmt.Fprintf(stdout, "  Completion rate: %.1f%%\n", o.CompletionRate)

	_, _ = fmt.Fprintln(stdout, "By category:")
	for _, c := range backend.Categories {
		b := s.CategoryStats[string(c)]
		_, _ = fmt.Fprintf(stdout, "  %-9s %d/%d done\n", c, b.Completed, b.Total)
	}
	_, _ = fmt.Fprintln(stdout, "By priority:")
	for _, p := range backend.Priorities {
		b := s.PriorityStats[string(p)]
		_, _ = fmt.Fprintf(stdout, "  %-9s %d/%d done\n", p, b.Completed, b.Total)
	}

	in := s.Insights
	_, _ = fmt.Fprintf(stdout, "Streak: %d days  Score: %.1f\n", in.Streak, in.ProductivityScore)
	printResult(stdout, a.cfg, ResultInfoOnly)
	return nil
}

func newSyncCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile with the remote server",
		Long:  "Fetch every task from the remote server and make the local list match it. Reminders are updated to follow.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return doSync(cmd.Context(), a, stdout, isJSON(cmd, a.appCfg))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

type syncJSON struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Armed     int `json:"armed"`
	Released  int `json:"released"`
	Total     int `json:"total"`
}

func doSync(ctx context.Context, a *app, stdout io.Writer, jsonOutput bool) error {
	if _, offline := a.remote.(backend.Offline); offline {
		return utils.ErrRemoteOffline("sync", backend.ErrOffline)
	}

	res, err := a.mgr.Sync(ctx)
	if err != nil {
		return err
	}
	total := len(a.mgr.Tasks())

	if jsonOutput {
		return writeJSON(stdout, syncJSON{
			Added:     res.Added,
			Updated:   res.Updated,
			Unchanged: res.Unchanged,
			Removed:   res.Removed,
			Armed:     res.Armed,
			Released:  res.Released,
			Total:     total,
		})
	}
	_, _ = fmt.Fprintf(stdout, "Synced %d tasks: %s\n", total, res)
	printResult(stdout, a.cfg, ResultActionCompleted)
	return nil
}
