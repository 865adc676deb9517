package utils

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logrus logger plus the log file it may own.
// Output goes to stderr without timestamps until LogToFile is called.
type Logger struct {
	mu   sync.Mutex
	log  *logrus.Logger
	file *os.File
}

var (
	loggerInstance *Logger
	once           sync.Once
)

func consoleFormatter() logrus.Formatter {
	return &logrus.TextFormatter{DisableTimestamp: true, DisableLevelTruncation: true}
}

// GetLogger returns the shared logger.
func GetLogger() *Logger {
	once.Do(func() {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetFormatter(consoleFormatter())
		l.SetLevel(logrus.InfoLevel)
		loggerInstance = &Logger{log: l}
	})
	return loggerInstance
}

// SetVerboseMode enables debug output on the shared logger.
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

func (l *Logger) SetVerbose(verbose bool) {
	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	l.log.SetLevel(level)
}

func (l *Logger) IsVerbose() bool {
	return l.log.IsLevelEnabled(logrus.DebugLevel)
}

func (l *Logger) SetOutput(w io.Writer) {
	l.log.SetOutput(w)
}

// LogToFile appends further output to path with full timestamps, replacing
// any file opened earlier.
func (l *Logger) LogToFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.mu.Lock()
	prev := l.file
	l.file = f
	l.mu.Unlock()

	l.log.SetOutput(f)
	l.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Close releases the log file, if any, and returns to stderr.
func (l *Logger) Close() {
	l.mu.Lock()
	f := l.file
	l.file = nil
	l.mu.Unlock()

	if f == nil {
		return
	}
	l.log.SetOutput(os.Stderr)
	l.log.SetFormatter(consoleFormatter())
	_ = f.Close()
}

// Logrus exposes the underlying logger so tests can attach hooks.
func (l *Logger) Logrus() *logrus.Logger {
	return l.log
}

func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.log.WithFields(logrus.Fields(fields))
}

// logf formats only when level is enabled, so debug arguments cost nothing
// outside verbose mode.
func (l *Logger) logf(level logrus.Level, format string, args ...interface{}) {
	if l.log.IsLevelEnabled(level) {
		l.log.Log(level, fmt.Sprintf(format, args...))
	}
}

func Debugf(format string, args ...interface{}) {
	GetLogger().logf(logrus.DebugLevel, format, args...)
}

func Infof(format string, args ...interface{}) {
	GetLogger().logf(logrus.InfoLevel, format, args...)
}

func Warnf(format string, args ...interface{}) {
	GetLogger().logf(logrus.WarnLevel, format, args...)
}

func Errorf(format string, args ...interface{}) {
	GetLogger().logf(logrus.ErrorLevel, format, args...)
}
