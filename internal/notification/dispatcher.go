package notification

import (
	"errors"
	"fmt"
	"runtime"

	"taskmaster/internal/utils"
)

// Config selects the channels a Dispatcher fans out to.
type Config struct {
	Enabled bool
	OS      OSConfig
	Log     LogConfig
}

// OSConfig enables desktop notifications. Kinds limits which alerts are
// shown; empty means all of them.
type OSConfig struct {
	Enabled bool
	Kinds   []Kind
}

// LogConfig enables the append-only alert log. The file is rotated to
// Path+".old" once it reaches MaxBytes.
type LogConfig struct {
	Enabled  bool
	Path     string
	MaxBytes int64
}

type dispatchOptions struct {
	runner   Runner
	platform string
	extra    []Channel
}

// Option adjusts how NewDispatcher builds its channels.
type Option func(*dispatchOptions)

// WithRunner replaces the command runner of the OS channel.
func WithRunner(r Runner) Option {
	return func(o *dispatchOptions) { o.runner = r }
}

// WithPlatform overrides runtime.GOOS for the OS channel.
func WithPlatform(platform string) Option {
	return func(o *dispatchOptions) { o.platform = platform }
}

// WithChannel appends a channel, e.g. a recorder in tests.
func WithChannel(ch Channel) Option {
	return func(o *dispatchOptions) { o.extra = append(o.extra, ch) }
}

// Dispatcher sends every notification to all of its channels.
type Dispatcher struct {
	enabled  bool
	channels []Channel
}

// NewDispatcher builds the channels cfg enables. A disabled config yields a
// dispatcher that drops everything.
func NewDispatcher(cfg Config, opts ...Option) *Dispatcher {
	o := dispatchOptions{runner: execRunner{}, platform: runtime.GOOS}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Dispatcher{enabled: cfg.Enabled}
	if !cfg.Enabled {
		return d
	}
	if cfg.OS.Enabled {
		d.channels = append(d.channels, NewOSChannel(cfg.OS, o.runner, o.platform))
	}
	if cfg.Log.Enabled && cfg.Log.Path != "" {
		d.channels = append(d.channels, NewLogChannel(cfg.Log))
	}
	d.channels = append(d.channels, o.extra...)
	return d
}

// Send delivers n on every channel. One failing channel does not stop the
// others; their errors are joined.
func (d *Dispatcher) Send(n Notification) error {
	if !d.enabled {
		return nil
	}
	var errs []error
	for _, ch := range d.channels {
		if err := ch.Send(n); err != nil {
			utils.Debugf("%s channel failed for %s alert: %v", ch.Name(), n.Kind, err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Channels names the active channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

func (d *Dispatcher) Close() error {
	var errs []error
	for _, ch := range d.channels {
		errs = append(errs, ch.Close())
	}
	return errors.Join(errs...)
}
