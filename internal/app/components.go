package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cronlock/internal/config"
	"cronlock/internal/crontab"
	"cronlock/internal/joblog"
	"cronlock/internal/jobs"
	"cronlock/internal/launch"
	"cronlock/internal/liveness"
	"cronlock/internal/lockstore"
	"cronlock/internal/metrics"
	"cronlock/internal/registrar"
	"cronlock/internal/storage"
	"cronlock/pkg/logx"
)

// Components is the object graph shared by serve and the one-shot commands.
type Components struct {
	Config    *config.Config
	Store     storage.Store
	Locks     *lockstore.Store
	Logs      *joblog.Dir
	Table     *crontab.Table
	Registrar *registrar.Registrar
	Launcher  *launch.Supervisor
	Jobs      *jobs.Service
	Metrics   *metrics.Collector
}

// Build wires every component from cfg. A nil reg disables metrics.
func Build(cfg *config.Config, reg prometheus.Registerer, log logx.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	var m *metrics.Collector
	if reg != nil {
		m = metrics.NewCollector(reg)
	}

	locks, err := NewLocks(cfg, log)
	if err != nil {
		return nil, err
	}
	locks.OnCleanup = func(kind lockstore.CleanupKind, _ string, _ int) {
		m.RecordLockCleanup(string(kind))
	}

	logs, err := joblog.NewDir(cfg.Paths.LogDir)
	if err != nil {
		return nil, err
	}

	exe := strings.TrimSpace(cfg.Cron.Executable)
	if exe == "" {
		if exe, err = registrar.ExecutablePath(); err != nil {
			return nil, fmt.Errorf("app: resolve executable: %w", err)
		}
	}
	table := crontab.NewTable(cronBackend(cfg.Cron))
	regr := registrar.New(table, registrar.WrapperCommand{
		Executable: exe,
		LockDir:    locks.Dir(),
		Atomic:     locks.Mode() == lockstore.ModeAtomic,
		Shell:      wrapperShell(cfg.Launch.Shell),
	}, logs, log)

	durs, err := cfg.Durations()
	if err != nil {
		return nil, err
	}

	sc, err := storageConfig(cfg.Storage, durs.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}

	launcher := launch.New(launch.Config{
		WorkDir: cfg.Paths.WorkDir,
		Shell:   cfg.Launch.Shell,
		Grace:   durs.LaunchGrace,
	}, locks, liveness.New(), jobs.Definitions(store), logs, log)

	svc := jobs.New(jobs.Deps{
		Store:     store,
		Registrar: regr,
		Locks:     locks,
		Launcher:  launcher,
		Logs:      logs,
		Metrics:   m,
		Log:       log,
	})

	return &Components{
		Config:    cfg,
		Store:     store,
		Locks:     locks,
		Logs:      logs,
		Table:     table,
		Registrar: regr,
		Launcher:  launcher,
		Jobs:      svc,
		Metrics:   m,
	}, nil
}

func (c *Components) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// NewLocks opens the lock store alone; `wrap` needs nothing else.
func NewLocks(cfg *config.Config, log logx.Logger) (*lockstore.Store, error) {
	mode, err := lockstore.ParseMode(cfg.Lock.Mode)
	if err != nil {
		return nil, err
	}
	return lockstore.New(lockstore.Config{Dir: cfg.Paths.LockDir, Mode: mode}, liveness.New(), log)
}

func cronBackend(cc config.CronConfig) crontab.Backend {
	if strings.EqualFold(strings.TrimSpace(cc.Backend), "file") {
		return crontab.FileBackend{Path: cc.Path}
	}
	return crontab.CommandBackend{Bin: cc.Bin, User: cc.User}
}

// wrapperShell keeps crontab lines short when the default shell is in use.
func wrapperShell(shell string) string {
	if strings.TrimSpace(shell) == launch.DefaultShell {
		return ""
	}
	return strings.TrimSpace(shell)
}

func storageConfig(sc config.StorageConfig, busy time.Duration) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}
	out := storage.Config{Driver: driver, Path: path}
	if driver == "sqlite" || driver == "sqlite3" {
		out.BusyTimeout = busy
	}
	return out, nil
}
