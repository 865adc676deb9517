package shutdown_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"taskmaster/internal/shutdown"
)

func TestShutdownCancelsContext(t *testing.T) {
	mgr := shutdown.NewManager(context.Background())

	select {
	case <-mgr.Done():
		t.Fatal("context cancelled before shutdown")
	default:
	}

	mgr.Shutdown()
	mgr.Shutdown()

	select {
	case <-mgr.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after shutdown")
	}
}

func TestParentCancellationPropagates(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	mgr := shutdown.NewManager(parent)

	cancel()

	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Fatal("parent cancellation not seen")
	}
}

func TestSignalTriggersShutdown(t *testing.T) {
	mgr := shutdown.NewManager(context.Background())
	mgr.Notify(syscall.SIGUSR1)
	defer mgr.Shutdown()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-mgr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not trigger shutdown")
	}
}

func TestCleanupRunsInReverseOrder(t *testing.T) {
	mgr := shutdown.NewManager(context.Background())

	var mu sync.Mutex
	var order []string
	record := func(name string) shutdown.CleanupFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	mgr.Register("logger", record("logger"))
	mgr.Register("store", record("store"))
	mgr.Register("server", record("server"))

	if err := mgr.Cleanup(time.Second); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	want := []string{"server", "store", "logger"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	select {
	case <-mgr.Done():
	default:
		t.Error("cleanup should start shutdown")
	}
}

func TestCleanupContinuesAfterFailure(t *testing.T) {
	mgr := shutdown.NewManager(context.Background())

	var ran atomic.Bool
	mgr.Register("first", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	mgr.Register("broken", func(ctx context.Context) error {
		return errors.New("close failed")
	})

	if err := mgr.Cleanup(time.Second); err != nil {
		t.Fatalf("failed steps should not fail cleanup: %v", err)
	}
	if !ran.Load() {
		t.Error("earlier cleanup skipped after a failure")
	}
}

func TestCleanupTimeout(t *testing.T) {
	mgr := shutdown.NewManager(context.Background())

	release := make(chan struct{})
	defer close(release)
	mgr.Register("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	start := time.Now()
	err := mgr.Cleanup(50 * time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cleanup blocked for %v", elapsed)
	}
}

func TestCleanupRunsOnce(t *testing.T) {
	mgr := shutdown.NewManager(context.Background())

	var calls atomic.Int32
	mgr.Register("store", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	_ = mgr.Cleanup(time.Second)
	_ = mgr.Cleanup(time.Second)

	if n := calls.Load(); n != 1 {
		t.Errorf("cleanup ran %d times, want 1", n)
	}
}

func TestCleanupSeesDeadline(t *testing.T) {
	mgr := shutdown.NewManager(context.Background())

	var hadDeadline atomic.Bool
	mgr.Register("server", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		return nil
	})

	_ = mgr.Cleanup(time.Second)
	if !hadDeadline.Load() {
		t.Error("cleanup context should carry the deadline")
	}
}
