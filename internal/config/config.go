// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"taskmaster/internal/reminder"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// Config represents the application configuration
type Config struct {
	Remote       RemoteConfig    `yaml:"remote"`
	Storage      StorageConfig   `yaml:"storage"`
	Sync         SyncConfig      `yaml:"sync"`
	Reminder     reminder.Config `yaml:"reminder"`
	Logging      LoggingConfig   `yaml:"logging"`
	DefaultView  string          `yaml:"default_view"`
	OutputFormat string          `yaml:"output_format"`
	Server       ServerConfig    `yaml:"server"`
}

// RemoteConfig describes the remote task server.
type RemoteConfig struct {
	BaseURL    string `yaml:"base_url"`
	Username   string `yaml:"username"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
	FetchLimit int    `yaml:"fetch_limit"`
}

// StorageConfig selects the local persistence backend.
type StorageConfig struct {
	Backend string       `yaml:"backend"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
	Redis   RedisConfig  `yaml:"redis"`
}

// SQLiteConfig holds SQLite persistence configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds redis persistence configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// SyncConfig holds synchronization settings
type SyncConfig struct {
	Enabled             bool         `yaml:"enabled"`
	ConnectivityTimeout string       `yaml:"connectivity_timeout"`
	Daemon              DaemonConfig `yaml:"daemon"`
}

// DaemonConfig holds sync daemon settings
type DaemonConfig struct {
	Interval         int    `yaml:"interval"` // seconds
	BreakerThreshold int    `yaml:"breaker_threshold"`
	BreakerCooldown  string `yaml:"breaker_cooldown"`
	SocketPath       string `yaml:"socket_path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Verbose bool   `yaml:"verbose"`
	File    string `yaml:"file"`
}

// ServerConfig holds development server settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(sampleConfig), cfg); err != nil {
		panic(fmt.Sprintf("embedded sample config is invalid: %v", err))
	}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteSample(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return DefaultConfig(), nil
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path without creating defaults.
// A missing file yields nil, nil.
func LoadFromPath(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}
	return cfg, nil
}

// WriteSample writes the documented sample configuration to path.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyDefaults fills unset fields and expands paths.
func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = filepath.Join(GetDataDir(), "tasks.db")
	}
	c.Storage.SQLite.Path = ExpandPath(c.Storage.SQLite.Path)
	if c.Reminder.LogPath == "" {
		c.Reminder.LogPath = filepath.Join(GetDataDir(), "notifications.log")
	}
	c.Reminder.LogPath = ExpandPath(c.Reminder.LogPath)
	c.Logging.File = ExpandPath(c.Logging.File)
	if c.Remote.Username == "" {
		c.Remote.Username = "default"
	}
	if c.DefaultView == "" {
		c.DefaultView = "default"
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "text"
	}
	c.Remote.BaseURL = strings.TrimRight(c.Remote.BaseURL, "/")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OutputFormat != "text" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output_format: %q (must be 'text' or 'json')", c.OutputFormat)
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required")
		}
	default:
		return fmt.Errorf("unknown storage.backend: %q (must be 'sqlite' or 'redis')", c.Storage.Backend)
	}

	if c.Remote.BaseURL != "" && !strings.HasPrefix(c.Remote.BaseURL, "http://") && !strings.HasPrefix(c.Remote.BaseURL, "https://") {
		return fmt.Errorf("remote.base_url must start with http:// or https://, got %q", c.Remote.BaseURL)
	}

	for name, value := range map[string]string{
		"remote.timeout":               c.Remote.Timeout,
		"sync.connectivity_timeout":    c.Sync.ConnectivityTimeout,
		"sync.daemon.breaker_cooldown": c.Sync.Daemon.BreakerCooldown,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", name, value)
		}
	}

	if _, err := c.Reminder.LeadDuration(); err != nil {
		return fmt.Errorf("invalid reminder.lead: %w", err)
	}
	return nil
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(verbose bool, outputFormat string) {
	if verbose {
		c.Logging.Verbose = true
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
}

// HasRemote reports whether a remote task server is configured and sync is enabled.
func (c *Config) HasRemote() bool {
	return c.Remote.BaseURL != "" && c.Sync.Enabled
}

// GetRemoteTimeout returns the remote request timeout, 30s by default.
func (c *Config) GetRemoteTimeout() time.Duration {
	return parseDurationOr(c.Remote.Timeout, 30*time.Second)
}

// GetConnectivityTimeout returns the bound on the remote delete that precedes local removal.
// Returns 5s as default if not configured.
func (c *Config) GetConnectivityTimeout() time.Duration {
	return parseDurationOr(c.Sync.ConnectivityTimeout, 5*time.Second)
}

// GetDaemonInterval returns the daemon sync interval.
// Returns 5 minutes if not configured.
func (c *Config) GetDaemonInterval() time.Duration {
	if c.Sync.Daemon.Interval <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Sync.Daemon.Interval) * time.Second
}

// GetBreakerCooldown returns how long the daemon pauses after repeated sync failures.
func (c *Config) GetBreakerCooldown() time.Duration {
	return parseDurationOr(c.Sync.Daemon.BreakerCooldown, 30*time.Second)
}

// GetSocketPath returns the configured daemon socket, or "" for the default.
func (c *Config) GetSocketPath() string {
	return ExpandPath(c.Sync.Daemon.SocketPath)
}

// GetServerAddr returns the development server listen address.
func (c *Config) GetServerAddr() string {
	if c.Server.Addr == "" {
		return ":8001"
	}
	return c.Server.Addr
}

// GetViewsDir returns the directory holding custom views.
func (c *Config) GetViewsDir() string {
	return filepath.Join(GetConfigDir(), "views")
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// getXDGDir returns a directory path following the XDG base directory layout.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "taskmaster")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "taskmaster")
	}
	return filepath.Join(home, fallbackPath, "taskmaster")
}

// GetConfigDir returns the configuration directory following the XDG base directory layout
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following the XDG base directory layout
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
