package notification_test

import (
	"encoding/json"
	"os"
	"testing"

	"taskmaster/internal/testutil"
)

func TestNotificationTestWritesLogCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)

	out := cli.MustExecute("notification", "test")
	testutil.AssertContains(t, out, "Test notification sent to 1 channel(s)")
	testutil.AssertResultCode(t, out, testutil.ResultActionCompleted)

	data, err := os.ReadFile(cli.NotificationLogPath())
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	testutil.AssertContains(t, string(data), "[TEST] Test notification")

	out = cli.MustExecute("notification", "log")
	testutil.AssertContains(t, out, "[TEST] Test notification")
	testutil.AssertResultCode(t, out, testutil.ResultInfoOnly)
}

func TestNotificationTestWithOSChannelCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SetFullConfig(`reminder:
  enabled: true
  os_notification: true
`)

	out := cli.MustExecute("notification", "test")
	testutil.AssertContains(t, out, "Test notification sent to 2 channel(s)")
}

func TestNotificationsDisabledCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SetFullConfig(`reminder:
  enabled: false
`)

	out := cli.MustExecute("notification", "test")
	testutil.AssertContains(t, out, "No notification channels enabled")
	testutil.AssertResultCode(t, out, testutil.ResultInfoOnly)

	out = cli.MustExecute("add", "Quiet task", "--due", "2026-01-20 10:00")
	testutil.AssertContains(t, out, "Created task: Quiet task")
	testutil.AssertNotContains(t, out, "Reminder at")
}

func TestNotificationLogEmptyAndClearCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)

	out := cli.MustExecute("notification", "log")
	testutil.AssertContains(t, out, "No notifications logged")

	out = cli.MustExecute("--json", "notification", "log")
	var entries []string
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", entries)
	}

	cli.MustExecute("notification", "test")
	out = cli.MustExecute("notification", "log", "clear")
	testutil.AssertContains(t, out, "Notification log cleared")

	out = cli.MustExecute("notification", "log")
	testutil.AssertContains(t, out, "No notifications logged")
}

func TestReminderLeadFromConfigCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SetFullConfig(`reminder:
  enabled: true
  lead: 30m
`)

	out := cli.MustExecute("add", "Dentist", "--due", "2026-01-11 09:00")
	testutil.AssertContains(t, out, "Reminder at 2026-01-11 08:30")

	// A fire time already behind the clock arms nothing.
	out = cli.MustExecute("add", "Standup", "--due", "2026-01-10 12:15")
	testutil.AssertNotContains(t, out, "Reminder at")
}
