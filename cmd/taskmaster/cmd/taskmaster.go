package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"taskmaster/backend"
	"taskmaster/internal/config"
	"taskmaster/internal/credentials"
	"taskmaster/internal/utils"
)

// Version is set at build time
var Version = "dev"

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds application configuration
type Config struct {
	NoPrompt            bool
	Verbose             bool
	OutputFormat        string
	ConfigPath          string // Path to config file (for testing)
	DBPath              string // Path to database file (for testing)
	ViewsPath           string // Path to views directory (for testing)
	NotificationLogPath string // Enables the log channel at this path (for testing)
	NotificationMock    bool   // Replace OS notification commands with a no-op (for testing)
	SocketPath          string // Daemon socket (for testing)

	// Remote replaces the configured remote store (for testing).
	Remote backend.RemoteStore
	// Keyring replaces the system keyring (for testing).
	Keyring credentials.Keyring
	// Now replaces the clock (for testing).
	Now func() time.Time
	// Stdin replaces os.Stdin for prompts (for testing).
	Stdin io.Reader
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	return ExecuteContext(context.Background(), args, stdout, stderr, cfg)
}

// ExecuteContext is Execute with a context that long-running commands
// (daemon, tui) stop on.
func ExecuteContext(ctx context.Context, args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewTaskmaster(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if cfg != nil && cfg.Stdin != nil {
		rootCmd.SetIn(cfg.Stdin)
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultError)
			}
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewTaskmaster creates the root command with injectable IO
func NewTaskmaster(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "taskmaster",
		Short:   "A task manager with reminders and remote sync",
		Long:    "taskmaster keeps a local task list with due-date reminders and keeps it in sync with a remote task server.",
		Version: Version,
		Args:    cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noPrompt, _ := cmd.Flags().GetBool("no-prompt"); noPrompt {
				cfg.NoPrompt = true
			}
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				cfg.Verbose = true
			}
			utils.SetVerboseMode(cfg.Verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// A bare invocation in a terminal opens the interactive view.
			if f, ok := stdout.(*os.File); ok && !cfg.NoPrompt && term.IsTerminal(int(f.Fd())) {
				return runTUI(cmd.Context(), cfg, stdout, "")
			}
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	cmd.AddCommand(newAddCmd(stdout, cfg))
	cmd.AddCommand(newListCmd(stdout, cfg))
	cmd.AddCommand(newToggleCmd(stdout, cfg))
	cmd.AddCommand(newDeleteCmd(stdout, cfg))
	cmd.AddCommand(newCalendarCmd(stdout, cfg))
	cmd.AddCommand(newStatsCmd(stdout, cfg))
	cmd.AddCommand(newSyncCmd(stdout, cfg))
	cmd.AddCommand(newDaemonCmd(stdout, cfg))
	cmd.AddCommand(newTUICmd(stdout, cfg))
	cmd.AddCommand(newViewCmd(stdout, cfg))
	cmd.AddCommand(newNotificationCmd(stdout, cfg))
	cmd.AddCommand(newCredentialsCmd(stdout, cfg))
	cmd.AddCommand(newConfigCmd(stdout, cfg))
	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

// loadConfig reads the config file and applies test overrides and flags.
func loadConfig(cfg *Config) (*config.Config, error) {
	path := cfg.ConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	appCfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cfg.DBPath != "" {
		appCfg.Storage.Backend = "sqlite"
		appCfg.Storage.SQLite.Path = cfg.DBPath
	}
	if cfg.NotificationLogPath != "" {
		appCfg.Reminder.LogNotification = true
		appCfg.Reminder.LogPath = cfg.NotificationLogPath
	}
	if cfg.SocketPath != "" {
		appCfg.Sync.Daemon.SocketPath = cfg.SocketPath
	}
	appCfg.ApplyFlags(cfg.Verbose, cfg.OutputFormat)

	if err := appCfg.Validate(); err != nil {
		return nil, utils.WrapWithSuggestion(err, "Fix "+path+" or run 'taskmaster config init --force' to start over")
	}

	utils.SetVerboseMode(appCfg.Logging.Verbose)
	if appCfg.Logging.File != "" {
		if err := utils.GetLogger().LogToFile(appCfg.Logging.File); err != nil {
			utils.Warnf("Logging to stderr: %v", err)
		}
	}
	return appCfg, nil
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Config) viewsDir(appCfg *config.Config) string {
	if c.ViewsPath != "" {
		return c.ViewsPath
	}
	return appCfg.GetViewsDir()
}

func (c *Config) socketPath(appCfg *config.Config) string {
	if p := appCfg.GetSocketPath(); p != "" {
		return p
	}
	return defaultSocketPath()
}

func (c *Config) credentialManager() *credentials.Manager {
	if c.Keyring != nil {
		return credentials.NewManager(credentials.WithKeyring(c.Keyring))
	}
	return credentials.NewManager()
}

// isJSON reports whether output should be JSON, from --json or output_format.
func isJSON(cmd *cobra.Command, appCfg *config.Config) bool {
	if j, _ := cmd.Flags().GetBool("json"); j {
		return true
	}
	return appCfg != nil && appCfg.OutputFormat == "json"
}

type errorResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
	Code       int    `json:"code"`
	Result     string `json:"result"`
}

// outputErrorJSON outputs an error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	response := errorResponse{
		Error:  err.Error(),
		Code:   1,
		Result: ResultError,
	}
	var ews *utils.ErrorWithSuggestion
	if errors.As(err, &ews) {
		response.Error = ews.Err.Error()
		response.Suggestion = ews.GetSuggestion()
	}

	jsonBytes, _ := json.Marshal(response)
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
}

func writeJSON(stdout io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(data))
	return nil
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(stdout, "taskmaster\nVersion: %s\n", Version)
		},
	}
}
