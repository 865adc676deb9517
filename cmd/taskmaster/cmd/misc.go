package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"taskmaster/internal/config"
	"taskmaster/internal/credentials"
	"taskmaster/internal/notification"
	"taskmaster/internal/tui"
	"taskmaster/internal/views"
)

func newTUICmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive task view",
		Long:  "Open a full-screen view of the task list with category tabs. Reminders fire while it is open.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, _ := cmd.Flags().GetString("view")
			return runTUI(cmd.Context(), cfg, stdout, view)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("view", "v", "", "View whose sort order to start with")
	return cmd
}

func runTUI(ctx context.Context, cfg *Config, stdout io.Writer, viewName string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.mutated = true

	if viewName == "" {
		viewName = a.appCfg.DefaultView
	}
	opts := []tui.Option{}
	if cfg.Now != nil {
		opts = append(opts, tui.WithClock(cfg.Now))
	}
	if view, err := views.NewLoader(cfg.viewsDir(a.appCfg)).LoadView(viewName); err == nil {
		if key, err := views.ParseSortKey(view.Sort); err == nil {
			opts = append(opts, tui.WithSort(key))
		}
	}

	p := tea.NewProgram(tui.New(a.mgr, opts...),
		tea.WithAltScreen(),
		tea.WithOutput(stdout),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func newViewCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	viewCmd := &cobra.Command{
		Use:           "view",
		Short:         "Manage views",
		Long:          "View management commands for listing and working with views.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	viewCmd.AddCommand(newViewListCmd(stdout, cfg))
	viewCmd.AddCommand(newViewInitCmd(stdout, cfg))
	return viewCmd
}

func newViewListCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available views",
		Long:  "List all available views including built-in and custom views.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			return doViewList(cfg, cfg.viewsDir(appCfg), stdout, isJSON(cmd, appCfg))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

type viewJSON struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	BuiltIn     bool   `json:"builtIn"`
	Overrides   bool   `json:"overrides"`
}

func doViewList(cfg *Config, viewsDir string, stdout io.Writer, jsonOutput bool) error {
	viewList, err := views.NewLoader(viewsDir).ListViews()
	if err != nil {
		return err
	}

	if jsonOutput {
		out := make([]viewJSON, 0, len(viewList))
		for _, v := range viewList {
			out = append(out, viewJSON(v))
		}
		return writeJSON(stdout, out)
	}

	_, _ = fmt.Fprintln(stdout, "Available views:")
	for _, v := range viewList {
		viewType := "custom"
		if v.BuiltIn {
			viewType = "built-in"
		} else if v.Overrides {
			viewType = "custom, overrides built-in"
		}
		_, _ = fmt.Fprintf(stdout, "  - %s (%s)", v.Name, viewType)
		if v.Description != "" {
			_, _ = fmt.Fprintf(stdout, ": %s", v.Description)
		}
		_, _ = fmt.Fprintln(stdout)
	}
	printResult(stdout, cfg, ResultInfoOnly)
	return nil
}

func newViewInitCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the built-in views to the views folder for editing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			dir := cfg.viewsDir(appCfg)
			created, err := views.SetupViewsFolder(dir)
			if err != nil {
				return err
			}
			if created {
				_, _ = fmt.Fprintf(stdout, "Created views folder: %s\n", dir)
				printResult(stdout, cfg, ResultActionCompleted)
			} else {
				_, _ = fmt.Fprintf(stdout, "Views folder already exists: %s\n", dir)
				printResult(stdout, cfg, ResultInfoOnly)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newNotificationCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notification",
		Short: "Manage reminder notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newNotificationTestCmd(stdout, cfg))
	cmd.AddCommand(newNotificationLogCmd(stdout, cfg))
	return cmd
}

func newNotificationTestCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Send a test notification through every enabled channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			m := notification.NewDispatcher(notificationConfig(appCfg), notificationOptions(cfg)...)
			defer func() { _ = m.Close() }()

			channels := m.Channels()
			if len(channels) == 0 {
				_, _ = fmt.Fprintln(stdout, "No notification channels enabled")
				printResult(stdout, cfg, ResultInfoOnly)
				return nil
			}
			if err := m.Send(notification.Notification{
				Kind:    notification.KindTest,
				Title:   "taskmaster",
				Message: "Test notification",
				At:      cfg.now(),
			}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "Test notification sent to %d channel(s): %s\n", len(channels), strings.Join(channels, ", "))
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newNotificationLogCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the notification log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			entries, err := notification.ReadLog(appCfg.Reminder.LogPath)
			if err != nil {
				return err
			}
			if isJSON(cmd, appCfg) {
				if entries == nil {
					entries = []string{}
				}
				return writeJSON(stdout, entries)
			}
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(stdout, "No notifications logged")
			}
			for _, e := range entries {
				_, _ = fmt.Fprintln(stdout, e)
			}
			printResult(stdout, cfg, ResultInfoOnly)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the notification log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			if err := notification.ClearLog(appCfg.Reminder.LogPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, "Notification log cleared")
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})
	return cmd
}

func newCredentialsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the remote API token",
		Long:  "Store, inspect and remove the API token used for the remote task server. Tokens live in the system keyring.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("username", "u", "", "Account name (default remote.username)")

	cmd.AddCommand(&cobra.Command{
		Use:   "set [token]",
		Short: "Store the API token in the system keyring",
		Long:  "Store the API token in the system keyring. Without an argument the token is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, user, err := credentialsHandler(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			token := ""
			if len(args) == 1 {
				token = args[0]
			}
			if err := h.Set(cmd.Context(), user, token); err != nil {
				return err
			}
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show where the API token comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, user, err := credentialsHandler(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			jsonOutput, _ := cmd.Flags().GetBool("json")
			if err := h.Get(cmd.Context(), user, jsonOutput); err != nil {
				return err
			}
			if !jsonOutput {
				printResult(stdout, cfg, ResultInfoOnly)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the API token from the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, user, err := credentialsHandler(cmd, cfg, stdout)
			if err != nil {
				return err
			}
			if err := h.Delete(cmd.Context(), user); err != nil {
				return err
			}
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})
	return cmd
}

func credentialsHandler(cmd *cobra.Command, cfg *Config, stdout io.Writer) (*credentials.CLIHandler, string, error) {
	appCfg, err := loadConfig(cfg)
	if err != nil {
		return nil, "", err
	}
	user, _ := cmd.Flags().GetString("username")
	if user == "" {
		user = appCfg.Remote.Username
	}
	stdin := cmd.InOrStdin()
	if stdin == nil {
		stdin = os.Stdin
	}
	return credentials.NewCLIHandler(cfg.credentialManager(), stdin, stdout), user, nil
}

func newConfigCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(stdout, configPath(cfg))
		},
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the sample config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return doConfigInit(configPath(cfg), force, cfg, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(appCfg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(stdout, string(data))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})
	return cmd
}

func configPath(cfg *Config) string {
	if cfg.ConfigPath != "" {
		return cfg.ConfigPath
	}
	return config.DefaultConfigPath()
}

func doConfigInit(path string, force bool, cfg *Config, stdout io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		_, _ = fmt.Fprintf(stdout, "Config file already exists: %s\n", path)
		printResult(stdout, cfg, ResultInfoOnly)
		return nil
	}
	if err := config.WriteSample(path); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Wrote config file: %s\n", path)
	printResult(stdout, cfg, ResultActionCompleted)
	return nil
}
