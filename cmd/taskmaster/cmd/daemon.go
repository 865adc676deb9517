package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"taskmaster/backend"
	"taskmaster/internal/daemon"
	"taskmaster/internal/utils"
)

func defaultSocketPath() string {
	return daemon.SocketPath()
}

func newDaemonCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Background sync daemon",
		Long:  "Run or control the daemon that keeps the local list in sync with the remote server and fires reminders while it runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newDaemonRunCmd(stdout, cfg))
	cmd.AddCommand(newDaemonStatusCmd(stdout, cfg))
	cmd.AddCommand(newDaemonStopCmd(stdout, cfg))
	cmd.AddCommand(newDaemonNotifyCmd(stdout, cfg))
	return cmd
}

func newDaemonRunCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon in the foreground",
		Long:  "Sync on every interval and whenever another taskmaster command changes a task, until interrupted or stopped with 'taskmaster daemon stop'.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doDaemonRun(cmd.Context(), cfg, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func doDaemonRun(ctx context.Context, cfg *Config, stdout io.Writer) error {
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, offline := a.remote.(backend.Offline); offline {
		return utils.WrapWithSuggestion(errors.New("no remote server configured"),
			"Set remote.base_url and sync.enabled: true in your config file")
	}

	socket := cfg.socketPath(a.appCfg)
	if daemon.IsRunning(socket) {
		return utils.WrapWithSuggestion(fmt.Errorf("daemon already running on %s", socket),
			"Use 'taskmaster daemon stop' first")
	}

	d := daemon.New(daemon.Config{
		SocketPath:       socket,
		Interval:         a.appCfg.GetDaemonInterval(),
		BreakerThreshold: a.appCfg.Sync.Daemon.BreakerThreshold,
		BreakerCooldown:  a.appCfg.GetBreakerCooldown(),
	}, a.daemonSync)
	d.SetNotifier(a.notifier)
	d.SetReminderCount(a.reminders.Count)

	_, _ = fmt.Fprintf(stdout, "Daemon running on %s (interval %v)\n", socket, a.appCfg.GetDaemonInterval())
	if err := d.Run(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, "Daemon stopped")
	return nil
}

// daemonSync saves pending changes, picks up what other commands saved,
// then reconciles with the remote.
func (a *app) daemonSync(ctx context.Context) error {
	if err := a.store.Flush(ctx); err != nil {
		utils.Warnf("Save before sync failed: %v", err)
	}

	before := a.mgr.Tasks()
	a.mgr.Start(ctx)
	present := make(map[string]bool)
	for _, t := range a.mgr.Tasks() {
		present[t.ID] = true
	}
	for _, t := range before {
		if !present[t.ID] {
			a.reminders.ReleaseTask(t.ID)
		}
	}

	res, err := a.mgr.Sync(ctx)
	if err != nil {
		return err
	}
	utils.Infof("Synced: %s", res)
	return nil
}

func newDaemonStatusCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			return doDaemonStatus(cfg.socketPath(appCfg), cfg, stdout, isJSON(cmd, appCfg))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func doDaemonStatus(socket string, cfg *Config, stdout io.Writer, jsonOutput bool) error {
	resp, err := daemon.NewClient(socket).Status()
	if err != nil {
		if jsonOutput {
			return writeJSON(stdout, daemon.Response{Status: "ok", Running: false})
		}
		_, _ = fmt.Fprintln(stdout, "Daemon is not running")
		printResult(stdout, cfg, ResultInfoOnly)
		return nil
	}

	if jsonOutput {
		return writeJSON(stdout, resp)
	}
	_, _ = fmt.Fprintln(stdout, "Daemon is running")
	_, _ = fmt.Fprintf(stdout, "  Interval: %s\n", resp.Interval)
	_, _ = fmt.Fprintf(stdout, "  Syncs: %d  Consecutive errors: %d\n", resp.SyncCount, resp.ErrorCount)
	if resp.LastSync != "" {
		_, _ = fmt.Fprintf(stdout, "  Last sync: %s\n", resp.LastSync)
	}
	if resp.LastError != "" {
		_, _ = fmt.Fprintf(stdout, "  Last error: %s\n", resp.LastError)
	}
	if resp.RetryIn != "" {
		_, _ = fmt.Fprintf(stdout, "  Circuit: %s (next attempt in %s)\n", resp.Circuit, resp.RetryIn)
	} else {
		_, _ = fmt.Fprintf(stdout, "  Circuit: %s\n", resp.Circuit)
	}
	_, _ = fmt.Fprintf(stdout, "  Reminders armed: %d\n", resp.Reminders)
	printResult(stdout, cfg, ResultInfoOnly)
	return nil
}

func newDaemonStopCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			socket := cfg.socketPath(appCfg)
			if !daemon.IsRunning(socket) {
				_, _ = fmt.Fprintln(stdout, "Daemon is not running")
				printResult(stdout, cfg, ResultInfoOnly)
				return nil
			}
			if err := daemon.NewClient(socket).Stop(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, "Daemon stopped")
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newDaemonNotifyCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Ask a running daemon to sync now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			if err := daemon.NewClient(cfg.socketPath(appCfg)).Notify(); err != nil {
				return utils.WrapWithSuggestion(fmt.Errorf("daemon not reachable: %w", err),
					"Start it with 'taskmaster daemon run'")
			}
			_, _ = fmt.Fprintln(stdout, "Sync requested")
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
