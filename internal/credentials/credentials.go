// Package credentials stores the remote API token in the OS keyring, with
// an environment variable override.
package credentials

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"taskmaster/internal/utils"
)

const (
	// Service is the keyring service name tokens are stored under.
	Service = "taskmaster"
	// TokenEnvVar overrides the keyring when set.
	TokenEnvVar = "TASKMASTER_API_TOKEN"
)

// Source says where a token was found.
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// CredentialInfo is the result of a lookup. Token never leaves the process
// through JSON.
type CredentialInfo struct {
	Username string `json:"username"`
	Source   Source `json:"source"`
	Found    bool   `json:"found"`
	Token    string `json:"-"`
}

func (c *CredentialInfo) JSON() ([]byte, error) {
	return json.Marshal(c)
}

// Keyring is the subset of go-keyring the manager needs.
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// lookup returns the token for a user, "" when this source has none.
type lookup struct {
	source Source
	find   func(username string) (string, error)
}

// Manager resolves tokens from the environment, then the keyring.
type Manager struct {
	keyring Keyring
	getenv  func(string) string
}

type ManagerOption func(*Manager)

func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) { m.keyring = k }
}

// WithEnv replaces os.Getenv.
func WithEnv(getenv func(string) string) ManagerOption {
	return func(m *Manager) { m.getenv = getenv }
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{keyring: systemKeyring{}, getenv: os.Getenv}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) chain() []lookup {
	return []lookup{
		{SourceEnvironment, func(string) (string, error) { return m.getenv(TokenEnvVar), nil }},
		{SourceKeyring, func(user string) (string, error) {
			token, err := m.keyring.Get(Service, user)
			if errors.Is(err, ErrSecretNotFound) || errors.Is(err, ErrKeyringNotAvailable) {
				return "", nil
			}
			return token, err
		}},
	}
}

// Set stores token for username in the keyring.
func (m *Manager) Set(ctx context.Context, username, token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("token cannot be empty")
	}
	return m.keyring.Set(Service, username, token)
}

// Get reports the first source holding a token for username. A missing
// token is not an error; Found is false and Source is SourceNone.
func (m *Manager) Get(ctx context.Context, username string) (*CredentialInfo, error) {
	for _, l := range m.chain() {
		token, err := l.find(username)
		if err != nil {
			return nil, err
		}
		if token != "" {
			return &CredentialInfo{Username: username, Source: l.source, Found: true, Token: token}, nil
		}
	}
	return &CredentialInfo{Username: username, Source: SourceNone}, nil
}

// Token is Get for callers that need the token itself.
func (m *Manager) Token(ctx context.Context, username string) (string, error) {
	info, err := m.Get(ctx, username)
	switch {
	case err != nil:
		return "", err
	case !info.Found:
		return "", utils.ErrCredentialsNotFound(username)
	}
	return info.Token, nil
}

// Delete removes the stored token. A token that was never stored is fine.
func (m *Manager) Delete(ctx context.Context, username string) error {
	if err := m.keyring.Delete(Service, username); err != nil && !errors.Is(err, ErrSecretNotFound) {
		return err
	}
	return nil
}

// PromptSecret reads one token line, without echo when reader is a terminal.
func PromptSecret(reader io.Reader, writer io.Writer, username string) (string, error) {
	_, _ = fmt.Fprintf(writer, "Enter API token for %s: ", username)

	if f, ok := reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(writer)
		return strings.TrimSpace(string(secret)), err
	}

	line, err := bufio.NewReader(reader).ReadString('\n')
	if line = strings.TrimSpace(line); line != "" {
		return line, nil
	}
	if err != nil && err != io.EOF {
		return "", err
	}
	return "", errors.New("no input received")
}
