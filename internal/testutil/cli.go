// Package testutil runs the taskmaster CLI in-process against a throwaway
// config directory, so each package can keep its CLI tests next to its code.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskmaster/backend"
	"taskmaster/cmd/taskmaster/cmd"
	"taskmaster/internal/credentials"
)

// baseConfig keeps tests local: no remote, no desktop notifications.
const baseConfig = `remote:
  base_url: ""
sync:
  enabled: false
reminder:
  enabled: true
  lead: 1h
  os_notification: false
`

// DefaultNow is the clock every CLITest starts with, a Saturday noon.
var DefaultNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.Local)

// Result codes printed last in no-prompt mode.
const (
	ResultActionCompleted = cmd.ResultActionCompleted
	ResultInfoOnly        = cmd.ResultInfoOnly
	ResultError           = cmd.ResultError
)

// CLITest is one isolated CLI environment.
type CLITest struct {
	t   *testing.T
	dir string
	cfg *cmd.Config
	now time.Time
}

// NewCLITest creates an environment with its own config, database, views
// folder and notification log, a mock keyring and the DefaultNow clock.
// Commands run in no-prompt mode until SetStdin is called.
func NewCLITest(t *testing.T) *CLITest {
	t.Helper()

	c := &CLITest{t: t, dir: t.TempDir(), now: DefaultNow}
	c.cfg = &cmd.Config{
		NoPrompt:            true,
		ConfigPath:          c.path("config.yaml"),
		DBPath:              c.path("tasks.db"),
		ViewsPath:           c.path("views"),
		NotificationLogPath: c.path("notifications.log"),
		NotificationMock:    true,
		SocketPath:          c.path("d.sock"),
		Keyring:             credentials.NewMockKeyring(),
		Now:                 func() time.Time { return c.now },
	}
	if err := os.MkdirAll(c.cfg.ViewsPath, 0755); err != nil {
		t.Fatalf("failed to create views folder: %v", err)
	}
	c.write(c.cfg.ConfigPath, baseConfig)
	return c
}

// NewCLITestWithRemote is NewCLITest wired to a FakeRemote seeded with tasks.
func NewCLITestWithRemote(t *testing.T, tasks ...backend.RemoteTask) (*CLITest, *backend.FakeRemote) {
	t.Helper()
	c := NewCLITest(t)
	remote := backend.NewFakeRemote(tasks...)
	c.cfg.Remote = remote
	return c, remote
}

func (c *CLITest) path(name string) string {
	return filepath.Join(c.dir, name)
}

func (c *CLITest) write(path, content string) {
	c.t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		c.t.Fatalf("failed to write %s: %v", filepath.Base(path), err)
	}
}

// Config exposes the command config for tweaks the helpers do not cover.
func (c *CLITest) Config() *cmd.Config { return c.cfg }

func (c *CLITest) ViewsDir() string { return c.cfg.ViewsPath }

func (c *CLITest) NotificationLogPath() string { return c.cfg.NotificationLogPath }

// SetStdin feeds input to prompts and turns no-prompt mode off.
func (c *CLITest) SetStdin(input string) {
	c.cfg.NoPrompt = false
	c.cfg.Stdin = strings.NewReader(input)
}

// SetConfigValue appends a top-level "key: value" line to the config.
func (c *CLITest) SetConfigValue(key, value string) {
	c.t.Helper()
	data, err := os.ReadFile(c.cfg.ConfigPath)
	if err != nil {
		c.t.Fatalf("failed to read config: %v", err)
	}
	c.write(c.cfg.ConfigPath, string(data)+key+": "+value+"\n")
}

// SetFullConfig replaces the config file.
func (c *CLITest) SetFullConfig(yamlContent string) {
	c.t.Helper()
	c.write(c.cfg.ConfigPath, yamlContent)
}

// WriteView stores name.yaml in the views folder.
func (c *CLITest) WriteView(name, yamlContent string) {
	c.t.Helper()
	c.write(filepath.Join(c.cfg.ViewsPath, name+".yaml"), yamlContent)
}

// Execute runs the CLI with args.
func (c *CLITest) Execute(args ...string) (stdout, stderr string, exitCode int) {
	var out, errOut bytes.Buffer
	exitCode = cmd.Execute(args, &out, &errOut, c.cfg)
	return out.String(), errOut.String(), exitCode
}

// MustExecute runs the CLI and fails the test on a non-zero exit.
func (c *CLITest) MustExecute(args ...string) string {
	c.t.Helper()
	stdout, stderr, code := c.Execute(args...)
	if code != 0 {
		c.t.Fatalf("%s: exit %d\nstdout: %s\nstderr: %s", strings.Join(args, " "), code, stdout, stderr)
	}
	return stdout
}

// ExecuteAndFail runs the CLI and fails the test if it succeeds.
func (c *CLITest) ExecuteAndFail(args ...string) (stdout, stderr string) {
	c.t.Helper()
	stdout, stderr, code := c.Execute(args...)
	if code == 0 {
		c.t.Fatalf("%s: expected failure, got exit 0\nstdout: %s", strings.Join(args, " "), stdout)
	}
	return stdout, stderr
}

func AssertContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Errorf("output missing %q:\n%s", want, output)
	}
}

func AssertNotContains(t *testing.T, output, unwanted string) {
	t.Helper()
	if strings.Contains(output, unwanted) {
		t.Errorf("output should not contain %q:\n%s", unwanted, output)
	}
}

func AssertExitCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("exit code = %d, want %d", got, want)
	}
}

// AssertResultCode checks the last output line.
func AssertResultCode(t *testing.T, output, want string) {
	t.Helper()
	trimmed := strings.TrimSpace(output)
	last := trimmed[strings.LastIndex(trimmed, "\n")+1:]
	if strings.TrimSpace(last) != want {
		t.Errorf("result code = %q, want %q\n%s", last, want, output)
	}
}
