package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CLIHandler implements the credentials subcommands.
type CLIHandler struct {
	manager *Manager
	stdin   io.Reader
	stdout  io.Writer
}

func NewCLIHandler(manager *Manager, stdin io.Reader, stdout io.Writer) *CLIHandler {
	return &CLIHandler{manager: manager, stdin: stdin, stdout: stdout}
}

func (h *CLIHandler) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(h.stdout, format, args...)
}

// Set stores token, prompting for it when empty.
func (h *CLIHandler) Set(ctx context.Context, username, token string) error {
	if token == "" {
		read, err := PromptSecret(h.stdin, h.stdout, username)
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = read
	}

	err := h.manager.Set(ctx, username, token)
	switch {
	case errors.Is(err, ErrKeyringNotAvailable):
		return fmt.Errorf("%w.\n\nAlternative: set the token in the environment instead:\n  export %s=\"your-api-token\"",
			ErrKeyringNotAvailable, TokenEnvVar)
	case err != nil:
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	h.printf("API token for %s stored in system keyring\n", username)
	return nil
}

// Get describes where the token comes from. The token itself is never shown.
func (h *CLIHandler) Get(ctx context.Context, username string, jsonOutput bool) error {
	info, err := h.manager.Get(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to get credentials: %w", err)
	}

	if jsonOutput {
		data, err := info.JSON()
		if err != nil {
			return err
		}
		h.printf("%s\n", data)
		return nil
	}

	var lines []string
	if info.Found {
		lines = []string{
			"Source: " + string(info.Source),
			"Username: " + info.Username,
			"Token: ******** (hidden)",
		}
	} else {
		lines = []string{
			"No API token found for " + info.Username,
			"Searched:",
			"  - Environment variable " + TokenEnvVar + ": Not set",
			"  - System keyring: Not found",
			"",
			"Suggestion: Run 'taskmaster credentials set'",
		}
	}
	h.printf("%s\n", strings.Join(lines, "\n"))
	return nil
}

func (h *CLIHandler) Delete(ctx context.Context, username string) error {
	if err := h.manager.Delete(ctx, username); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	h.printf("API token for %s removed from system keyring\n", username)
	return nil
}
