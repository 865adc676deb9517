package notification

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const defaultLogMaxBytes = 10 << 20

// alertFormatter writes one line per alert:
//
//	2026-01-16T10:30:00Z [REMINDER] Pay rent - Due: 2026-01-17 09:00 (task=abc)
type alertFormatter struct{}

func (alertFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	kind, _ := e.Data["kind"].(Kind)
	fmt.Fprintf(&b, "%s [%s] %s", e.Time.UTC().Format("2006-01-02T15:04:05Z"), strings.ToUpper(string(kind)), e.Message)
	if id, _ := e.Data["task"].(string); id != "" {
		fmt.Fprintf(&b, " (task=%s)", id)
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// logChannel appends alerts to a file through a dedicated logrus logger.
type logChannel struct {
	cfg LogConfig

	mu   sync.Mutex
	file *os.File
	log  *logrus.Logger
}

// NewLogChannel returns a channel writing to cfg.Path. The file is opened on
// the first alert.
func NewLogChannel(cfg LogConfig) Channel {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultLogMaxBytes
	}
	return &logChannel{cfg: cfg}
}

func (c *logChannel) Name() string { return "log" }

func (c *logChannel) Send(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.open(); err != nil {
		return err
	}
	entry := c.log.WithField("kind", n.Kind)
	if n.TaskID != "" {
		entry = entry.WithField("task", n.TaskID)
	}
	if !n.At.IsZero() {
		entry = entry.WithTime(n.At)
	}
	entry.Info(n.Message)
	return c.file.Sync()
}

func (c *logChannel) open() error {
	if c.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.cfg.Path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if info, err := os.Stat(c.cfg.Path); err == nil && info.Size() >= c.cfg.MaxBytes {
		if err := os.Rename(c.cfg.Path, c.cfg.Path+".old"); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}
	f, err := os.OpenFile(c.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	c.file = f
	c.log = &logrus.Logger{
		Out:       f,
		Formatter: alertFormatter{},
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.InfoLevel,
	}
	return nil
}

func (c *logChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file, c.log = nil, nil
	return err
}

// ReadLog returns the lines of the alert log. A missing file reads as empty.
func ReadLog(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// ClearLog empties the alert log.
func ClearLog(path string) error {
	return os.WriteFile(path, nil, 0644)
}
