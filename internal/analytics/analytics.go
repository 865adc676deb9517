// Package analytics computes aggregate statistics over a task snapshot.
// It only reads snapshots; nothing in the core depends on its output.
package analytics

import (
	"fmt"
	"math"
	"time"

	"taskmaster/backend"
)

// Breakdown counts tasks in one category or priority.
type Breakdown struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Pending        int     `json:"pending"`
	CompletionRate float64 `json:"completionRate"`
}

// Overview holds the headline counts.
type Overview struct {
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	PendingTasks   int     `json:"pendingTasks"`
	OverdueTasks   int     `json:"overdueTasks"`
	TodayTasks     int     `json:"todayTasks"`
	WeekTasks      int     `json:"weekTasks"`
	CompletionRate float64 `json:"completionRate"`
}

// DayTrend counts the tasks created on one day and how many of them are done.
type DayTrend struct {
	Date           string  `json:"date"`
	Day            string  `json:"day"`
	Created        int     `json:"created"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completionRate"`
}

// WeekTrend is DayTrend for a Monday-based week.
type WeekTrend struct {
	Week           string  `json:"week"`
	StartDate      string  `json:"startDate"`
	Created        int     `json:"created"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completionRate"`
}

// Insights are derived indicators.
type Insights struct {
	MostProductiveCategory  *string `json:"mostProductiveCategory"`
	LeastProductiveCategory *string `json:"leastProductiveCategory"`
	AverageTasksPerDay      float64 `json:"averageTasksPerDay"`
	Streak                  int     `json:"streak"`
	ProductivityScore       float64 `json:"productivityScore"`
}

// Stats is the full statistics report.
type Stats struct {
	Overview      Overview             `json:"overview"`
	CategoryStats map[string]Breakdown `json:"categoryStats"`
	PriorityStats map[string]Breakdown `json:"priorityStats"`
	DailyTrends   []DayTrend           `json:"dailyTrends"`
	Insights      Insights             `json:"insights"`
	Timestamp     string               `json:"timestamp"`
}

// Productivity is the weekly productivity report.
type Productivity struct {
	WeeklyTrends []WeekTrend `json:"weeklyTrends"`
	Timestamp    string      `json:"timestamp"`
}

// Compute builds the statistics report for tasks as of now.
func Compute(tasks []backend.Task, now time.Time) Stats {
	today := startOfDay(now)
	weekStart := startOfWeek(now)

	s := Stats{
		CategoryStats: make(map[string]Breakdown),
		PriorityStats: make(map[string]Breakdown),
		Timestamp:     backend.FormatTimestamp(now),
	}

	o := &s.Overview
	for _, t := range tasks {
		o.TotalTasks++
		if t.Completed {
			o.CompletedTasks++
		}
		if t.HasDueDate() {
			if !t.Completed && t.DueDate.Before(now) {
				o.OverdueTasks++
			}
			if within(t.DueDate, today, today.AddDate(0, 0, 1)) {
				o.TodayTasks++
			}
			if within(t.DueDate, weekStart, weekStart.AddDate(0, 0, 7)) {
				o.WeekTasks++
			}
		}
		s.CategoryStats[string(t.Category)] = count(s.CategoryStats[string(t.Category)], t)
		s.PriorityStats[string(t.Priority)] = count(s.PriorityStats[string(t.Priority)], t)
	}
	o.PendingTasks = o.TotalTasks - o.CompletedTasks
	o.CompletionRate = rate(o.CompletedTasks, o.TotalTasks)
	finish(s.CategoryStats)
	finish(s.PriorityStats)

	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		created, completed := createdBetween(tasks, day, day.AddDate(0, 0, 1))
		s.DailyTrends = append(s.DailyTrends, DayTrend{
			Date:           day.Format("2006-01-02"),
			Day:            day.Format("Mon"),
			Created:        created,
			Completed:      completed,
			CompletionRate: rate(completed, created),
		})
	}

	s.Insights = Insights{
		AverageTasksPerDay: round1(float64(o.TotalTasks) / 7),
		Streak:             streak(tasks, today),
		ProductivityScore:  productivityScore(o.CompletionRate, o.OverdueTasks),
	}
	s.Insights.MostProductiveCategory, s.Insights.LeastProductiveCategory = extremes(s.CategoryStats)
	return s
}

// ComputeProductivity reports the last four weeks, oldest first.
func ComputeProductivity(tasks []backend.Task, now time.Time) Productivity {
	p := Productivity{Timestamp: backend.FormatTimestamp(now)}
	current := startOfWeek(now)
	for w := 3; w >= 0; w-- {
		start := current.AddDate(0, 0, -7*w)
		created, completed := createdBetween(tasks, start, start.AddDate(0, 0, 7))
		p.WeeklyTrends = append(p.WeeklyTrends, WeekTrend{
			Week:           fmt.Sprintf("Week %d", 4-w),
			StartDate:      start.Format("2006-01-02"),
			Created:        created,
			Completed:      completed,
			CompletionRate: rate(completed, created),
		})
	}
	return p
}

func count(b Breakdown, t backend.Task) Breakdown {
	b.Total++
	if t.Completed {
		b.Completed++
	}
	return b
}

func finish(m map[string]Breakdown) {
	for k, b := range m {
		b.Pending = b.Total - b.Completed
		b.CompletionRate = rate(b.Completed, b.Total)
		m[k] = b
	}
}

// extremes picks the categories with the most and fewest completed tasks.
// Ties go to the earlier category in backend.Categories.
func extremes(m map[string]Breakdown) (most, least *string) {
	var names []string
	for _, c := range backend.Categories {
		if _, ok := m[string(c)]; ok {
			names = append(names, string(c))
		}
	}
	for k := range m {
		if !backend.Category(k).Valid() {
			names = append(names, k)
		}
	}
	for i := range names {
		name := names[i]
		if most == nil || m[name].Completed > m[*most].Completed {
			most = &names[i]
		}
		if least == nil || m[name].Completed < m[*least].Completed {
			least = &names[i]
		}
	}
	return most, least
}

func createdBetween(tasks []backend.Task, from, to time.Time) (created, completed int) {
	for _, t := range tasks {
		if !within(t.CreatedAt, from, to) {
			continue
		}
		created++
		if t.Completed {
			completed++
		}
	}
	return created, completed
}

// streak counts consecutive days, ending today or yesterday, on which a
// task was completed. UpdatedAt stands in for the completion time.
func streak(tasks []backend.Task, today time.Time) int {
	days := make(map[string]bool)
	for _, t := range tasks {
		if t.Completed && t.UpdatedAt != nil {
			days[startOfDay(t.UpdatedAt.In(today.Location())).Format("2006-01-02")] = true
		}
	}
	day := today
	if !days[day.Format("2006-01-02")] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for days[day.Format("2006-01-02")] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}

func productivityScore(completionRate float64, overdue int) float64 {
	if overdue == 0 {
		return round1(completionRate + 10)
	}
	return round1(completionRate - float64(overdue*2))
}

func within(t, from, to time.Time) bool {
	return !t.IsZero() && !t.Before(from) && t.Before(to)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
