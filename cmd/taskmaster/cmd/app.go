package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"taskmaster/backend"
	"taskmaster/backend/redisstore"
	"taskmaster/backend/rest"
	"taskmaster/backend/sqlite"
	"taskmaster/internal/cache"
	"taskmaster/internal/config"
	"taskmaster/internal/daemon"
	"taskmaster/internal/manager"
	"taskmaster/internal/notification"
	"taskmaster/internal/reminder"
	"taskmaster/internal/utils"
)

// closeTimeout bounds the final save and remote writes on exit.
const closeTimeout = 10 * time.Second

// app is one session: the task manager and everything it is wired to.
type app struct {
	cfg       *Config
	appCfg    *config.Config
	store     *cache.Store
	remote    backend.RemoteStore
	notifier  *notification.Dispatcher
	alerts    *notification.Scheduler
	reminders *reminder.Scheduler
	mgr       *manager.Manager
	mutated   bool
}

// openApp loads the config, opens persistence and the remote store and
// starts a manager with the persisted collection restored.
func openApp(ctx context.Context, cfg *Config) (*app, error) {
	appCfg, err := loadConfig(cfg)
	if err != nil {
		return nil, err
	}

	persist, err := openPersistence(ctx, appCfg)
	if err != nil {
		return nil, err
	}

	remote, err := openRemote(ctx, cfg, appCfg)
	if err != nil {
		_ = persist.Close()
		return nil, err
	}

	notifier := notification.NewDispatcher(notificationConfig(appCfg), notificationOptions(cfg)...)
	alerts := notification.NewScheduler(notifier)

	lead, err := appCfg.Reminder.LeadDuration()
	if err != nil {
		lead = reminder.DefaultLead
	}
	var alerter reminder.Alerter
	if appCfg.Reminder.Enabled {
		alerter = alerts
	}
	reminders := reminder.NewScheduler(alerter, lead)
	if cfg.Now != nil {
		alerts.SetClock(cfg.Now)
		reminders.SetClock(cfg.Now)
	}

	store := cache.New(persist)
	mgr := manager.New(store, reminders, remote, manager.Options{
		ConnectivityTimeout: appCfg.GetConnectivityTimeout(),
		BackgroundTimeout:   appCfg.GetRemoteTimeout(),
		Now:                 cfg.Now,
	})
	alerts.OnFire(mgr.ReminderFired)
	mgr.Start(ctx)

	return &app{
		cfg:       cfg,
		appCfg:    appCfg,
		store:     store,
		remote:    remote,
		notifier:  notifier,
		alerts:    alerts,
		reminders: reminders,
		mgr:       mgr,
	}, nil
}

func openPersistence(ctx context.Context, appCfg *config.Config) (backend.Persistence, error) {
	switch appCfg.Storage.Backend {
	case "redis":
		r := appCfg.Storage.Redis
		p, err := redisstore.New(ctx, redisstore.Options{Addr: r.Addr, Password: r.Password, DB: r.DB, Key: r.Key})
		if err != nil {
			return nil, utils.ErrPersistenceFailed("open", err)
		}
		return p, nil
	default:
		p, err := sqlite.New(appCfg.Storage.SQLite.Path)
		if err != nil {
			return nil, utils.ErrPersistenceFailed("open", err)
		}
		return p, nil
	}
}

// openRemote returns the REST client for the configured server, or
// backend.Offline when no server is configured.
func openRemote(ctx context.Context, cfg *Config, appCfg *config.Config) (backend.RemoteStore, error) {
	if cfg.Remote != nil {
		return cfg.Remote, nil
	}
	if !appCfg.HasRemote() {
		return backend.Offline{}, nil
	}

	token, err := cfg.credentialManager().Token(ctx, appCfg.Remote.Username)
	if err != nil {
		utils.Debugf("Connecting without an API token: %v", err)
	}
	client, err := rest.New(rest.Config{
		BaseURL:    appCfg.Remote.BaseURL,
		APIToken:   token,
		Timeout:    appCfg.GetRemoteTimeout(),
		MaxRetries: appCfg.Remote.MaxRetries,
		FetchLimit: appCfg.Remote.FetchLimit,
	})
	if err != nil {
		return nil, utils.WrapWithSuggestion(err, "Check remote.base_url in your config file")
	}
	return client, nil
}

func notificationConfig(appCfg *config.Config) notification.Config {
	r := appCfg.Reminder
	return notification.Config{
		Enabled: r.Enabled,
		OS:      notification.OSConfig{Enabled: r.OSNotification},
		Log:     notification.LogConfig{Enabled: r.LogNotification, Path: r.LogPath},
	}
}

// notificationOptions keeps tests from popping up desktop notifications.
func notificationOptions(cfg *Config) []notification.Option {
	if cfg.NotificationMock {
		return []notification.Option{notification.WithRunner(notification.RunnerFunc(func(string, ...string) error { return nil }))}
	}
	return nil
}

// Close waits for background remote writes, saves the collection and
// tells a running daemon to sync if anything changed.
func (a *app) Close() {
	a.mgr.Wait()
	a.alerts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.store.Close(ctx); err != nil {
		utils.Errorf("Failed to save tasks: %v", err)
	}

	_ = a.notifier.Close()
	if c, ok := a.remote.(io.Closer); ok {
		_ = c.Close()
	}

	if a.mutated {
		a.notifyDaemon()
	}
}

func (a *app) notifyDaemon() {
	socket := a.cfg.socketPath(a.appCfg)
	if !daemon.IsRunning(socket) {
		return
	}
	if err := daemon.NewClient(socket).Notify(); err != nil {
		utils.Debugf("Daemon notify failed: %v", err)
	}
}

// now returns the session clock.
func (a *app) now() time.Time {
	return a.cfg.now()
}

// settle waits for background writes and returns task as it now stands.
// A create may have been renamed to the id the remote assigned.
func (a *app) settle(task backend.Task) backend.Task {
	a.mgr.Wait()
	if t, ok := a.mgr.Lookup(task.ID); ok {
		return t
	}
	for _, t := range a.mgr.Tasks() {
		if t.Title == task.Title && t.DueDate.Equal(task.DueDate) {
			return t
		}
	}
	return task
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printResult(stdout io.Writer, cfg *Config, code string) {
	if cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, code)
	}
}
