// Package shutdown ties process signals to a cancellable context and runs
// registered cleanup steps once the binaries stop.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"taskmaster/internal/utils"
)

// CleanupFunc releases one resource. The context expires when the cleanup
// deadline passes.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager cancels its context on the first signal or Shutdown call and runs
// cleanups in reverse registration order.
type Manager struct {
	mu       sync.Mutex
	cleanups []cleanupEntry
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
	cleaned  sync.Once
	sigCh    chan os.Signal
}

// NewManager creates a manager whose context descends from parent.
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{ctx: ctx, cancel: cancel}
}

// Notify cancels the manager's context when any of sigs arrives.
func (m *Manager) Notify(sigs ...os.Signal) {
	m.mu.Lock()
	if m.sigCh != nil {
		m.mu.Unlock()
		return
	}
	m.sigCh = make(chan os.Signal, 1)
	ch := m.sigCh
	m.mu.Unlock()

	signal.Notify(ch, sigs...)
	go func() {
		select {
		case sig := <-ch:
			utils.Debugf("Received %s, shutting down", sig)
			m.Shutdown()
		case <-m.ctx.Done():
		}
	}()
}

// Register adds a cleanup step. The last one registered runs first.
func (m *Manager) Register(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// Shutdown cancels the context. Only the first call has any effect.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.mu.Lock()
		if m.sigCh != nil {
			signal.Stop(m.sigCh)
		}
		m.mu.Unlock()
		m.cancel()
	})
}

// Context is cancelled once shutdown starts.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Done is closed once shutdown starts.
func (m *Manager) Done() <-chan struct{} {
	return m.ctx.Done()
}

// Cleanup starts shutdown if needed and runs every cleanup step within
// timeout. Failed steps are logged and the rest still run. It returns the
// deadline error when the steps did not finish in time.
func (m *Manager) Cleanup(timeout time.Duration) error {
	m.Shutdown()

	var err error
	m.cleaned.Do(func() {
		m.mu.Lock()
		cleanups := make([]cleanupEntry, len(m.cleanups))
		copy(cleanups, m.cleanups)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			for i := len(cleanups) - 1; i >= 0; i-- {
				if cerr := cleanups[i].fn(ctx); cerr != nil {
					utils.Warnf("Cleanup %s failed: %v", cleanups[i].name, cerr)
				}
			}
		}()

		select {
		case <-finished:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}
