package utils

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every error built in this file unwraps to one of them.
var (
	// ErrValidation marks bad mutation input; the operation changed nothing.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a mutation aimed at an unknown task id.
	ErrNotFound = errors.New("not found")
	// ErrRemoteUnavailable marks any failure talking to the remote store.
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrPersistence marks a failure saving or loading the local collection.
	ErrPersistence = errors.New("persistence failure")
)

// ErrorWithSuggestion is an error the CLI prints together with a hint.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

func (e *ErrorWithSuggestion) Error() string {
	return e.Err.Error() + "\n\nSuggestion: " + e.Suggestion
}

func (e *ErrorWithSuggestion) GetSuggestion() string { return e.Suggestion }

func (e *ErrorWithSuggestion) Unwrap() error { return e.Err }

func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{Err: err, Suggestion: suggestion}
}

// categorized builds "<category>: <detail>" with a hint.
func categorized(category error, hint, format string, args ...any) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: %s", category, fmt.Sprintf(format, args...)),
		Suggestion: hint,
	}
}

func ErrInvalidTask(reason string) error {
	return categorized(ErrValidation,
		`A task needs a non-empty title and a due date, e.g. --due "2026-01-15 09:00"`,
		"%s", reason)
}

func ErrInvalidDate(dateStr string) error {
	return categorized(ErrValidation,
		`Use YYYY-MM-DD or "YYYY-MM-DD HH:MM" (e.g., 2026-01-15 09:00)`,
		"invalid date: %s", dateStr)
}

func ErrTaskNotFound(id string) error {
	return categorized(ErrNotFound, "Use 'taskmaster list --all' to see task ids", "task %s", id)
}

// ErrAmbiguousTask is returned when an id prefix matches several tasks.
func ErrAmbiguousTask(prefix string, matches int) error {
	return categorized(ErrNotFound, "Type more characters of the task id",
		"%q matches %d tasks", prefix, matches)
}

func ErrCredentialsNotFound(user string) error {
	return categorized(ErrNotFound, "Run 'taskmaster credentials set <token>' or set TASKMASTER_API_TOKEN",
		"no API token stored for %s", user)
}

// ErrRemoteOffline wraps a remote failure during op. The hint depends on
// what went wrong.
func ErrRemoteOffline(op string, err error) error {
	return categorized(ErrRemoteUnavailable, remoteHint(err), "%s: %v", op, err)
}

func ErrPersistenceFailed(op string, err error) error {
	return categorized(ErrPersistence, "Check that the storage path is writable or the redis server is reachable",
		"%s: %v", op, err)
}

var remoteHints = []struct {
	needles []string
	hint    string
}{
	{[]string{"no such host", "dns"}, "Check your DNS settings and internet connection"},
	{[]string{"connection refused"}, "Check if the server is running and accessible"},
	{[]string{"timeout", "deadline exceeded"}, "The server may be slow or unreachable. Try again later"},
	{[]string{"no remote store configured"}, "Set remote.base_url in your config file to enable sync"},
}

func remoteHint(err error) string {
	reason := strings.ToLower(err.Error())
	for _, h := range remoteHints {
		for _, n := range h.needles {
			if strings.Contains(reason, n) {
				return h.hint
			}
		}
	}
	return "Check your internet connection and try again"
}
