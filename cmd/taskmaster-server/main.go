// Command taskmaster-server runs the in-memory development task API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskmaster/internal/config"
	"taskmaster/internal/credentials"
	"taskmaster/internal/server"
	"taskmaster/internal/shutdown"
	"taskmaster/internal/utils"
)

func main() {
	if err := newServerCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskmaster-server",
		Short: "Run the development task API",
		Long:  "Serve the task API from memory. Requests need the API token as a bearer token when one is stored for remote.username or set in " + credentials.TokenEnvVar + ".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			addr, _ := cmd.Flags().GetString("addr")
			verbose, _ := cmd.Flags().GetBool("verbose")
			return run(configPath, addr, verbose)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("config", "", "Config file (default $XDG_CONFIG_HOME/taskmaster/config.yaml)")
	cmd.Flags().String("addr", "", "Listen address (default server.addr)")
	cmd.Flags().BoolP("verbose", "V", false, "Log at debug level")
	return cmd
}

func run(configPath, addr string, verbose bool) error {
	utils.SetVerboseMode(verbose)
	logger := utils.GetLogger().Logrus()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.GetServerAddr()
	}

	mgr := shutdown.NewManager(context.Background())
	mgr.Notify(os.Interrupt, syscall.SIGTERM)

	token, err := credentials.NewManager().Token(mgr.Context(), cfg.Remote.Username)
	if err != nil {
		logger.Warnf("No API token found, requests are not authenticated")
		token = ""
	}

	e := server.New(server.NewStore(), server.Options{Token: token, Logger: logger})
	e.HideBanner = true
	mgr.Register("http", func(ctx context.Context) error {
		return e.Shutdown(ctx)
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Task API listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
	case <-mgr.Done():
		logger.Infof("Shutting down")
	}
	if cerr := mgr.Cleanup(10 * time.Second); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
