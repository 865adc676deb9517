// Package daemon keeps a taskmaster process alive in the foreground: it
// reconciles with the remote store on an interval, so reminders armed in
// this process can fire, and answers status requests on a Unix socket.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"taskmaster/internal/notification"
	"taskmaster/internal/utils"
)

// DefaultInterval is the sync interval used when none is configured.
const DefaultInterval = 5 * time.Minute

// Config holds daemon configuration.
type Config struct {
	SocketPath       string        // empty disables IPC
	Interval         time.Duration // time between syncs
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Message represents an IPC message between CLI and daemon.
type Message struct {
	Type string `json:"type"` // "notify", "status", "stop"
}

// Response represents a daemon response to CLI.
type Response struct {
	Status     string `json:"status"` // "ok", "error"
	Message    string `json:"message,omitempty"`
	Running    bool   `json:"running"`
	SyncCount  int    `json:"sync_count"`
	ErrorCount int    `json:"error_count"`
	LastSync   string `json:"last_sync,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	Circuit    string `json:"circuit,omitempty"`
	RetryIn    string `json:"retry_in,omitempty"`
	Interval   string `json:"interval,omitempty"`
	Reminders  int    `json:"reminders"`
}

// SyncFunc performs one reconciliation with the remote store.
type SyncFunc func(ctx context.Context) error

// Daemon runs the periodic sync loop.
type Daemon struct {
	cfg      Config
	sync     SyncFunc
	breaker  *CircuitBreaker
	notifier notification.Sender
	pending  func() int

	mu         sync.RWMutex
	syncCount  int
	errorCount int
	lastSync   time.Time
	lastError  string

	syncMu   sync.Mutex
	trigger  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	listener net.Listener
}

// New creates a Daemon that calls sync on every tick.
func New(cfg Config, sync SyncFunc) *Daemon {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Daemon{
		cfg:     cfg,
		sync:    sync,
		breaker: NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// SetNotifier sets where sync failures are reported once the circuit opens.
func (d *Daemon) SetNotifier(n notification.Sender) {
	d.notifier = n
}

// SetReminderCount sets the source of the reminder count reported by status.
func (d *Daemon) SetReminderCount(f func() int) {
	d.pending = f
}

// Breaker returns the daemon's circuit breaker.
func (d *Daemon) Breaker() *CircuitBreaker {
	return d.breaker
}

// Run syncs immediately and then on every interval until ctx is done or a
// stop request arrives.
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.SocketPath != "" {
		if err := d.listen(); err != nil {
			return err
		}
		defer d.cleanup()
		go d.handleConnections()
	}

	utils.Infof("Daemon started (interval: %v)", d.cfg.Interval)
	d.performSync(ctx)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.Infof("Daemon stopping: %v", ctx.Err())
			return nil
		case <-d.stop:
			utils.Infof("Stop requested via IPC")
			return nil
		case <-ticker.C:
			d.performSync(ctx)
		case <-d.trigger:
			d.performSync(ctx)
		}
	}
}

// Stop asks Run to return.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// Notify requests a sync as soon as possible. Requests made while one is pending coalesce.
func (d *Daemon) Notify() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Status reports the daemon's counters.
func (d *Daemon) Status() Response {
	d.mu.RLock()
	resp := Response{
		Status:     "ok",
		Running:    true,
		SyncCount:  d.syncCount,
		ErrorCount: d.errorCount,
		LastError:  d.lastError,
		Circuit:    d.breaker.State().String(),
		Interval:   d.cfg.Interval.String(),
	}
	if !d.lastSync.IsZero() {
		resp.LastSync = d.lastSync.Format(time.RFC3339)
	}
	d.mu.RUnlock()
	if wait := d.breaker.RetryIn(); wait > 0 {
		resp.RetryIn = wait.Round(time.Second).String()
	}
	if d.pending != nil {
		resp.Reminders = d.pending()
	}
	return resp
}

func (d *Daemon) performSync(ctx context.Context) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	if !d.breaker.Allow() {
		utils.Debugf("Sync skipped, circuit %s", d.breaker.State())
		return
	}

	err := d.sync(ctx)

	d.mu.Lock()
	if err != nil {
		d.errorCount++
		d.lastError = err.Error()
	} else {
		d.syncCount++
		d.errorCount = 0
		d.lastError = ""
		d.lastSync = time.Now()
	}
	count := d.syncCount
	d.mu.Unlock()

	if err == nil {
		d.breaker.RecordSuccess()
		utils.Debugf("Sync completed (count: %d)", count)
		return
	}

	utils.Warnf("Sync failed: %v", err)
	if d.breaker.RecordFailure() {
		utils.Warnf("Remote unavailable after %d attempts, pausing sync for %v",
			d.breaker.FailureCount(), d.breaker.Cooldown())
		if d.notifier != nil {
			_ = d.notifier.Send(notification.Notification{
				Kind:    notification.KindSyncError,
				Title:   "Sync failing",
				Message: fmt.Sprintf("Could not reach the task server: %v", err),
				At:      time.Now(),
			})
		}
	}
}

func (d *Daemon) listen() error {
	if err := os.MkdirAll(filepath.Dir(d.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if IsRunning(d.cfg.SocketPath) {
		return fmt.Errorf("daemon already running on %s", d.cfg.SocketPath)
	}
	_ = os.Remove(d.cfg.SocketPath)

	listener, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}
	d.listener = listener
	return nil
}

func (d *Daemon) handleConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			utils.Debugf("Accept error: %v", err)
			continue
		}
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg Message
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		return
	}
	encoder := json.NewEncoder(conn)

	switch msg.Type {
	case "notify":
		d.Notify()
		_ = encoder.Encode(Response{Status: "ok", Running: true})
	case "status":
		_ = encoder.Encode(d.Status())
	case "stop":
		_ = encoder.Encode(Response{Status: "ok", Running: false})
		d.Stop()
	default:
		_ = encoder.Encode(Response{Status: "error", Message: "unknown message type"})
	}
}

func (d *Daemon) cleanup() {
	if d.listener != nil {
		_ = d.listener.Close()
	}
	_ = os.Remove(d.cfg.SocketPath)
	utils.Infof("Daemon stopped")
}

// Client provides methods to communicate with a running daemon.
type Client struct {
	socketPath string
}

// NewClient creates a new daemon client.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Notify asks the daemon to sync now.
func (c *Client) Notify() error {
	_, err := c.sendAndReceive(Message{Type: "notify"})
	return err
}

// Status gets the daemon status.
func (c *Client) Status() (*Response, error) {
	return c.sendAndReceive(Message{Type: "status"})
}

// Stop requests the daemon to stop and waits for confirmation.
func (c *Client) Stop() error {
	_, err := c.sendAndReceive(Message{Type: "stop"})
	return err
}

func (c *Client) sendAndReceive(msg Message) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		return &resp, errors.New(resp.Message)
	}
	return &resp, nil
}

// IsRunning reports whether a daemon answers on socketPath.
func IsRunning(socketPath string) bool {
	_, err := NewClient(socketPath).Status()
	return err == nil
}

// SocketPath returns the default socket path.
func SocketPath() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "taskmaster", "daemon.sock")
	}
	return fmt.Sprintf("/tmp/taskmaster-daemon-%d.sock", os.Getuid())
}
