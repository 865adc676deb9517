package notification

import (
	"fmt"
	"os/exec"
	"strings"
)

// Runner starts an external command and waits for it.
type Runner interface {
	Run(name string, args ...string) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(name string, args ...string) error

func (f RunnerFunc) Run(name string, args ...string) error { return f(name, args...) }

type execRunner struct{}

func (execRunner) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// osChannel raises desktop notifications through the platform's helper tool.
type osChannel struct {
	kinds    map[Kind]bool
	runner   Runner
	platform string
}

// NewOSChannel returns a channel for platform ("linux", "darwin" or
// "windows") that runs commands through runner.
func NewOSChannel(cfg OSConfig, runner Runner, platform string) Channel {
	ch := &osChannel{runner: runner, platform: platform}
	if len(cfg.Kinds) > 0 {
		ch.kinds = make(map[Kind]bool, len(cfg.Kinds))
		for _, k := range cfg.Kinds {
			ch.kinds[k] = true
		}
	}
	return ch
}

func (c *osChannel) Name() string { return "os" }

func (c *osChannel) Send(n Notification) error {
	if c.kinds != nil && !c.kinds[n.Kind] {
		return nil
	}
	name, args, err := osCommand(c.platform, n)
	if err != nil {
		return err
	}
	return c.runner.Run(name, args...)
}

func (c *osChannel) Close() error { return nil }

// osCommand builds the command line that shows n on platform.
// Reminders are raised as critical on linux so they stay on screen.
func osCommand(platform string, n Notification) (string, []string, error) {
	switch platform {
	case "linux":
		args := []string{"--app-name=taskmaster"}
		if n.Kind == KindReminder {
			args = append(args, "--urgency=critical")
		}
		return "notify-send", append(args, n.Title, n.Message), nil
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`,
			appleScriptQuoter.Replace(n.Message), appleScriptQuoter.Replace(n.Title))
		return "osascript", []string{"-e", script}, nil
	case "windows":
		script := fmt.Sprintf(windowsBalloon, powerShellQuoter.Replace(n.Title), powerShellQuoter.Replace(n.Message))
		return "powershell", []string{"-Command", script}, nil
	}
	return "", nil, fmt.Errorf("unsupported platform: %s", platform)
}

var (
	appleScriptQuoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	powerShellQuoter  = strings.NewReplacer("`", "``", `"`, "`\"", "$", "`$")
)

const windowsBalloon = `
Add-Type -AssemblyName System.Windows.Forms
$n = New-Object System.Windows.Forms.NotifyIcon
$n.Icon = [System.Drawing.SystemIcons]::Information
$n.BalloonTipTitle = "%s"
$n.BalloonTipText = "%s"
$n.Visible = $true
$n.ShowBalloonTip(5000)
`
