package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"taskmaster/cmd/taskmaster/cmd"
	"taskmaster/internal/shutdown"
	"taskmaster/internal/utils"
)

func main() {
	mgr := shutdown.NewManager(context.Background())
	mgr.Notify(os.Interrupt, syscall.SIGTERM)
	mgr.Register("logger", func(ctx context.Context) error {
		utils.GetLogger().Close()
		return nil
	})

	code := cmd.ExecuteContext(mgr.Context(), os.Args[1:], os.Stdout, os.Stderr, nil)
	_ = mgr.Cleanup(5 * time.Second)
	os.Exit(code)
}
