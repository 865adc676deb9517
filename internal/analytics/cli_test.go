package analytics_test

import (
	"encoding/json"
	"testing"

	"taskmaster/internal/testutil"
)

func addTask(t *testing.T, cli *testutil.CLITest, args ...string) string {
	t.Helper()
	out := cli.MustExecute(append([]string{"--json", "add"}, args...)...)
	var task struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(out), &task); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	return task.ID
}

func seedStats(t *testing.T, cli *testutil.CLITest) {
	t.Helper()
	addTask(t, cli, "Late invoice", "--due", "2026-01-09 09:00", "-p", "low", "-c", "work")
	id := addTask(t, cli, "Gym", "--due", "2026-01-10 18:00", "-p", "high")
	addTask(t, cli, "Essay draft", "--due", "2026-01-20 09:00", "-c", "study")
	cli.MustExecute("toggle", id)
}

func TestStatsCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	seedStats(t, cli)

	out := cli.MustExecute("stats")
	testutil.AssertContains(t, out, "Total: 3  Completed: 1  Pending: 2")
	testutil.AssertContains(t, out, "Overdue: 1  Due today: 1  Due this week: 2")
	testutil.AssertContains(t, out, "Completion rate: 33.3%")
	testutil.AssertContains(t, out, "work      0/1 done")
	testutil.AssertContains(t, out, "personal  1/1 done")
	testutil.AssertContains(t, out, "high      1/1 done")
	testutil.AssertContains(t, out, "Streak: 1 days  Score: 31.3")
	testutil.AssertResultCode(t, out, testutil.ResultInfoOnly)
}

func TestStatsEmptyCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)

	out := cli.MustExecute("stats")
	testutil.AssertContains(t, out, "Total: 0  Completed: 0  Pending: 0")
	testutil.AssertContains(t, out, "Completion rate: 0.0%")
	testutil.AssertContains(t, out, "Streak: 0 days")
}

func TestStatsJSONCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	seedStats(t, cli)

	out := cli.MustExecute("--json", "stats")
	var stats struct {
		Overview struct {
			TotalTasks   int `json:"totalTasks"`
			OverdueTasks int `json:"overdueTasks"`
		} `json:"overview"`
		DailyTrends []struct {
			Date    string `json:"date"`
			Created int    `json:"created"`
		} `json:"dailyTrends"`
		Insights struct {
			MostProductiveCategory *string `json:"mostProductiveCategory"`
		} `json:"insights"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if stats.Overview.TotalTasks != 3 || stats.Overview.OverdueTasks != 1 {
		t.Errorf("overview = %+v", stats.Overview)
	}
	if n := len(stats.DailyTrends); n != 7 {
		t.Fatalf("expected 7 daily trends, got %d", n)
	}
	last := stats.DailyTrends[6]
	if last.Date != "2026-01-10" || last.Created != 3 {
		t.Errorf("today's trend = %+v", last)
	}
	if stats.Insights.MostProductiveCategory == nil || *stats.Insights.MostProductiveCategory != "personal" {
		t.Errorf("most productive category = %v", stats.Insights.MostProductiveCategory)
	}
}

func TestProductivityCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	seedStats(t, cli)

	out := cli.MustExecute("stats", "--productivity")
	testutil.AssertContains(t, out, "Weekly productivity:")
	testutil.AssertContains(t, out, "Week 1   2025-12-15  created  0  completed  0  (0.0%)")
	testutil.AssertContains(t, out, "Week 4   2026-01-05  created  3  completed  1  (33.3%)")
}
