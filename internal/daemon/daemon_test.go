package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskmaster/internal/notification"
)

type recorder struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (r *recorder) Send(n notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}


func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCircuitBreakerOpensAndProbes(t *testing.T) {
	clock := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.SetClock(func() time.Time { return clock })

	if cb.RecordFailure() {
		t.Error("first failure should not open the circuit")
	}
	if !cb.RecordFailure() {
		t.Error("reaching the threshold should open the circuit")
	}
	if cb.Allow() || cb.State() != CircuitOpen {
		t.Errorf("open circuit should block, state %s", cb.State())
	}

	clock = clock.Add(time.Minute)
	if !cb.Allow() || cb.State() != CircuitHalfOpen {
		t.Errorf("cooldown elapsed, expected half-open probe, state %s", cb.State())
	}
	if cb.RecordFailure() {
		t.Error("a failed probe reopens without reporting a new opening")
	}
	if cb.State() != CircuitOpen {
		t.Errorf("failed probe should reopen, state %s", cb.State())
	}

	clock = clock.Add(time.Minute)
	cb.Allow()
	cb.RecordSuccess()
	if cb.State() != CircuitClosed || cb.FailureCount() != 0 {
		t.Errorf("success should close and reset, state %s count %d", cb.State(), cb.FailureCount())
	}
}

func TestCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(0, 0)
	if cb.threshold != DefaultCircuitBreakerThreshold || cb.cooldown != DefaultCircuitBreakerCooldown {
		t.Errorf("defaults not applied: %d %v", cb.threshold, cb.cooldown)
	}
}

func TestDaemonSyncsOnStartAndTick(t *testing.T) {
	var calls atomic.Int32
	d := New(Config{Interval: 20 * time.Millisecond}, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, func() bool { return calls.Load() >= 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := d.Status()
	if st.SyncCount < 3 || st.LastSync == "" || st.Circuit != "closed" {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestDaemonOpensCircuitAndNotifiesOnce(t *testing.T) {
	var calls atomic.Int32
	d := New(Config{Interval: time.Hour, BreakerThreshold: 2, BreakerCooldown: time.Hour}, func(context.Context) error {
		calls.Add(1)
		return errors.New("connection refused")
	})
	rec := &recorder{}
	d.SetNotifier(rec)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d.performSync(ctx)
	}

	if calls.Load() != 2 {
		t.Errorf("sync should stop after the circuit opens, ran %d times", calls.Load())
	}
	if rec.count() != 1 {
		t.Fatalf("expected one sync-error notification, got %d", rec.count())
	}
	if rec.sent[0].Kind != notification.KindSyncError {
		t.Errorf("notification kind = %s", rec.sent[0].Kind)
	}
	st := d.Status()
	if st.ErrorCount != 2 || st.LastError != "connection refused" || st.Circuit != "open" {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.RetryIn == "" {
		t.Error("open circuit should report when the next attempt is due")
	}
}

func TestCircuitBreakerRetryIn(t *testing.T) {
	clock := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.SetClock(func() time.Time { return clock })

	if cb.RetryIn() != 0 {
		t.Error("closed breaker should not wait")
	}
	cb.RecordFailure()
	clock = clock.Add(20 * time.Second)
	if got := cb.RetryIn(); got != 40*time.Second {
		t.Errorf("RetryIn = %v, want 40s", got)
	}
	clock = clock.Add(time.Minute)
	if got := cb.RetryIn(); got != 0 {
		t.Errorf("half-open breaker should not wait, got %v", got)
	}
}

func TestDaemonIPC(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "d.sock")
	var calls atomic.Int32
	d := New(Config{SocketPath: socket, Interval: time.Hour}, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	d.SetReminderCount(func() int { return 7 })

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	waitFor(t, func() bool { return IsRunning(socket) })

	client := NewClient(socket)
	if err := client.Notify(); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return calls.Load() >= 2 })

	st, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Running || st.Reminders != 7 || st.Interval != "1h0m0s" {
		t.Errorf("unexpected status: %+v", st)
	}

	if err := client.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if IsRunning(socket) {
		t.Error("socket should be gone after stop")
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "d.sock")
	first := New(Config{SocketPath: socket, Interval: time.Hour}, func(context.Context) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = first.Run(ctx) }()
	waitFor(t, func() bool { return IsRunning(socket) })

	second := New(Config{SocketPath: socket, Interval: time.Hour}, func(context.Context) error { return nil })
	if err := second.Run(ctx); err == nil {
		t.Error("second daemon on the same socket should fail")
	}
}
