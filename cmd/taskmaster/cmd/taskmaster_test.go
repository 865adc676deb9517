package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"taskmaster/backend"
	"taskmaster/backend/rest"
	"taskmaster/internal/config"
	"taskmaster/internal/credentials"
)

// =============================================================================
// Core CLI Tests
// These tests verify root command behavior: help, version, flags, errors and
// config handling. Feature CLI tests live next to the feature code and use
// internal/testutil.
// =============================================================================

const localConfig = `remote:
  base_url: ""
sync:
  enabled: false
reminder:
  enabled: true
  os_notification: false
`

func testConfig(t *testing.T, yamlContent string) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if yamlContent != "" {
		if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
	}
	return &Config{
		ConfigPath:       path,
		DBPath:           filepath.Join(dir, "test.db"),
		ViewsPath:        filepath.Join(dir, "views"),
		SocketPath:       filepath.Join(dir, "d.sock"),
		NotificationMock: true,
		Keyring:          credentials.NewMockKeyring(),
		Now:              func() time.Time { return time.Date(2026, 1, 10, 12, 0, 0, 0, time.Local) },
	}
}

func run(cfg *Config, args ...string) (string, string, int) {
	var stdout, stderr bytes.Buffer
	code := Execute(args, &stdout, &stderr, cfg)
	return stdout.String(), stderr.String(), code
}

// --- Help and Version Tests ---

func TestHelpFlagCoreCLI(t *testing.T) {
	stdout, stderr, code := run(nil, "--help")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "taskmaster") {
		t.Errorf("help output should contain 'taskmaster', got: %s", stdout)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Errorf("help output should contain 'Usage:', got: %s", stdout)
	}
	for _, sub := range []string{"add", "list", "toggle", "delete", "calendar", "sync", "daemon"} {
		if !strings.Contains(stdout, sub) {
			t.Errorf("help output should list %q", sub)
		}
	}
}

// A bare invocation without a terminal prints help instead of starting the TUI.
func TestRootWithoutTerminalShowsHelpCoreCLI(t *testing.T) {
	stdout, _, code := run(testConfig(t, localConfig))
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Errorf("expected help output, got: %s", stdout)
	}
}

func TestVersionFlagCoreCLI(t *testing.T) {
	stdout, _, code := run(nil, "--version")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout, "taskmaster") {
		t.Errorf("version output should contain 'taskmaster', got: %s", stdout)
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, code := run(nil, "version")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout, "Version: "+Version) {
		t.Errorf("version output should contain 'Version:', got: %s", stdout)
	}
}

// --- Exit codes and error output ---

func TestUnknownCommandCoreCLI(t *testing.T) {
	_, stderr, code := run(nil, "frobnicate")
	if code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr, "Error:") {
		t.Errorf("expected error on stderr, got: %s", stderr)
	}
}

func TestNoPromptErrorResultCoreCLI(t *testing.T) {
	cfg := testConfig(t, localConfig)
	stdout, stderr, code := run(cfg, "-y", "toggle", "missing")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr, "not found: task missing") {
		t.Errorf("expected not found error, got: %s", stderr)
	}
	if strings.TrimSpace(stdout) != ResultError {
		t.Errorf("expected %s result code, got: %q", ResultError, stdout)
	}
}

func TestJSONErrorOutputCoreCLI(t *testing.T) {
	cfg := testConfig(t, localConfig)
	stdout, _, code := run(cfg, "--json", "toggle", "missing")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}

	var resp errorResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("expected JSON error, got %q: %v", stdout, err)
	}
	if resp.Result != ResultError || resp.Code != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.Suggestion, "taskmaster list --all") {
		t.Errorf("expected a suggestion, got %q", resp.Suggestion)
	}
}

func TestAddRequiresDueCoreCLI(t *testing.T) {
	cfg := testConfig(t, localConfig)
	_, stderr, code := run(cfg, "add", "Pay", "rent")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr, `"due"`) {
		t.Errorf("expected missing --due error, got: %s", stderr)
	}
}

func TestAddRejectsBadInputCoreCLI(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad date", []string{"add", "x", "--due", "someday"}, "invalid date"},
		{"bad priority", []string{"add", "x", "--due", "2026-02-01", "-p", "urgent"}, "invalid priority"},
		{"bad category", []string{"add", "x", "--due", "2026-02-01", "-c", "hobby"}, "invalid category"},
		{"blank title", []string{"add", " ", "--due", "2026-02-01"}, "title is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := run(testConfig(t, localConfig), tt.args...)
			if code != 1 {
				t.Fatalf("expected exit code 1, got %d", code)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Errorf("expected %q in stderr, got: %s", tt.want, stderr)
			}
		})
	}
}

// --- Config commands ---

func TestConfigCreatedOnFirstRunCoreCLI(t *testing.T) {
	cfg := testConfig(t, "")
	if _, _, code := run(cfg, "-y", "list"); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if string(data) != config.GetSampleConfig() {
		t.Error("created config should be the sample config")
	}
}

func TestConfigInitCoreCLI(t *testing.T) {
	cfg := testConfig(t, "")

	stdout, _, _ := run(cfg, "-y", "config", "init")
	if !strings.Contains(stdout, "Wrote config file") {
		t.Errorf("expected config to be written, got: %s", stdout)
	}

	stdout, _, _ = run(cfg, "-y", "config", "init")
	if !strings.Contains(stdout, "already exists") {
		t.Errorf("expected existing config to be kept, got: %s", stdout)
	}

	if err := os.WriteFile(cfg.ConfigPath, []byte("output_format: text\n"), 0644); err != nil {
		t.Fatal(err)
	}
	stdout, _, _ = run(cfg, "-y", "config", "init", "--force")
	if !strings.Contains(stdout, "Wrote config file") {
		t.Errorf("expected --force to overwrite, got: %s", stdout)
	}
}

func TestConfigPathAndShowCoreCLI(t *testing.T) {
	cfg := testConfig(t, localConfig)

	stdout, _, _ := run(cfg, "config", "path")
	if strings.TrimSpace(stdout) != cfg.ConfigPath {
		t.Errorf("expected %s, got %q", cfg.ConfigPath, stdout)
	}

	stdout, _, code := run(cfg, "config", "show")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout, "backend: sqlite") {
		t.Errorf("expected effective config, got: %s", stdout)
	}
}

func TestInvalidConfigCoreCLI(t *testing.T) {
	cfg := testConfig(t, "output_format: xml\n")
	stdout, _, code := run(cfg, "--json", "list")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	var resp errorResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("expected JSON error, got %q", stdout)
	}
	if !strings.Contains(resp.Error, "output_format") {
		t.Errorf("expected output_format error, got %q", resp.Error)
	}
	if !strings.Contains(resp.Suggestion, "config init --force") {
		t.Errorf("expected config init suggestion, got %q", resp.Suggestion)
	}
}

func TestOutputFormatConfigCoreCLI(t *testing.T) {
	cfg := testConfig(t, localConfig+"output_format: json\n")
	stdout, _, code := run(cfg, "list")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	var tasks []taskJSON
	if err := json.Unmarshal([]byte(stdout), &tasks); err != nil {
		t.Fatalf("expected JSON list, got %q: %v", stdout, err)
	}
}

// --- Wiring ---

func TestOpenRemoteCoreCLI(t *testing.T) {
	ctx := context.Background()

	t.Run("offline without base url", func(t *testing.T) {
		cfg := testConfig(t, localConfig)
		appCfg, err := loadConfig(cfg)
		if err != nil {
			t.Fatal(err)
		}
		remote, err := openRemote(ctx, cfg, appCfg)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := remote.(backend.Offline); !ok {
			t.Errorf("expected Offline remote, got %T", remote)
		}
	})

	t.Run("rest client when configured", func(t *testing.T) {
		cfg := testConfig(t, "remote:\n  base_url: http://localhost:8001/api\nsync:\n  enabled: true\n")
		if err := cfg.credentialManager().Set(ctx, "default", "tok"); err != nil {
			t.Fatal(err)
		}
		appCfg, err := loadConfig(cfg)
		if err != nil {
			t.Fatal(err)
		}
		remote, err := openRemote(ctx, cfg, appCfg)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := remote.(*rest.Backend); !ok {
			t.Errorf("expected REST remote, got %T", remote)
		}
	})

	t.Run("injected remote wins", func(t *testing.T) {
		cfg := testConfig(t, localConfig)
		fake := backend.NewFakeRemote()
		cfg.Remote = fake
		appCfg, _ := loadConfig(cfg)
		remote, _ := openRemote(ctx, cfg, appCfg)
		if remote != backend.RemoteStore(fake) {
			t.Errorf("expected injected remote, got %T", remote)
		}
	})
}

// Tasks persisted to redis survive between invocations.
func TestRedisStorageCoreCLI(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t, localConfig+"storage:\n  backend: redis\n  redis:\n    addr: "+mr.Addr()+"\n    key: tm:test\n")
	cfg.DBPath = ""
	cfg.NoPrompt = true

	stdout, stderr, code := run(cfg, "add", "Water", "plants", "--due", "2026-02-01 09:00")
	if code != 0 {
		t.Fatalf("add failed: %s %s", stdout, stderr)
	}
	if !mr.Exists("tm:test") {
		t.Fatal("expected tasks to be saved under tm:test")
	}

	stdout, _, _ = run(cfg, "list")
	if !strings.Contains(stdout, "Water plants") {
		t.Errorf("expected task to be listed from redis, got: %s", stdout)
	}
}

func TestUnreachableRedisCoreCLI(t *testing.T) {
	cfg := testConfig(t, localConfig+"storage:\n  backend: redis\n  redis:\n    addr: 127.0.0.1:1\n")
	cfg.DBPath = ""
	_, stderr, code := run(cfg, "list")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr, "persistence") {
		t.Errorf("expected persistence error, got: %s", stderr)
	}
}
