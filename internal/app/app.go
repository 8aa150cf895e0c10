// Package app assembles cronlock from its configuration and runs the serve
// process.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cronlock/internal/config"
	"cronlock/internal/httpapi"
	rtsup "cronlock/internal/runtime/supervisor"
	"cronlock/pkg/logx"
)

// App is the long-running `cronlock serve` process: HTTP API, config watch,
// startup synchronisation of the crontab.
type App struct {
	cfgm *config.Manager
	logs *logx.Service
	root logx.Logger
	log  logx.Logger

	level string

	comp *Components
	srv  *httpapi.Server
	sup  *rtsup.Supervisor
}

type Option func(*App)

// WithLogLevel pins the log level over the config file, reloads included.
func WithLogLevel(level string) Option {
	return func(a *App) { a.level = strings.TrimSpace(level) }
}

func New(cfgPath string, opts ...Option) (*App, error) {
	a := &App{}
	for _, o := range opts {
		o(a)
	}
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	lc := a.logConfig(cfg)
	boot := logx.NewConsole(lc.Level).With(logx.String("comp", "app"))
	logs, root := logx.New(lc, alertSender(cfg, boot))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	comp, err := Build(cfg, reg, root)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	durs, err := cfg.Durations()
	if err != nil {
		_ = comp.Close()
		_ = logs.Close()
		return nil, err
	}
	srvCfg := httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  durs.ReadTimeout,
		WriteTimeout: durs.WriteTimeout,
		IdleTimeout:  durs.IdleTimeout,
	}
	h := httpapi.NewRouter(comp.Jobs, httpapi.RouterOptions{
		RunRatePerSec: cfg.HTTP.RunRatePerSec,
		Gatherer:      reg,
	}, root)

	a.cfgm, a.logs, a.root = cfgm, logs, root
	a.log = root.With(logx.String("comp", "app"))
	a.comp = comp
	a.srv = httpapi.NewServer(srvCfg, h, root)
	return a, nil
}

func (a *App) logConfig(cfg *config.Config) logx.Config {
	lc := LogConfig(cfg)
	if a.level != "" {
		lc.Level = a.level
	}
	return lc
}

func (a *App) Components() *Components { return a.comp }

// Addr blocks until the API is listening.
func (a *App) Addr(ctx context.Context) (string, error) { return a.srv.Addr(ctx) }

// Done is closed when the app supervisor is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Schedules live in the crontab; a fresh start re-installs every stored
	// job so the two cannot drift. Individual failures are not fatal.
	n, err := a.comp.Jobs.Sync(a.sup.Context())
	if err != nil {
		a.log.Warn("crontab sync incomplete", logx.Int("registered", n), logx.Err(err))
	} else {
		a.log.Info("crontab synced", logx.Int("registered", n))
	}

	a.srv.Start(a.sup.Context())

	a.cfgm.SetLogger(a.root)
	a.cfgm.SetValidator(validateReload)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	if a.cfgm.Path() != "" {
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(prev, next *config.Config) {
	changed, attrs := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.logs.Apply(a.logConfig(next))
	if !config.HotReloadable(changed) {
		a.log.Warn("config changed; restart required for non-logging sections to take effect", fields...)
		return
	}
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return a.close()
	}
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	var errs []error
	if err := a.srv.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := a.sup.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("supervisor: %w", err))
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) close() error {
	err := a.comp.Close()
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

// validateReload rejects a reload whose log file could not be opened.
func validateReload(_ context.Context, cfg *config.Config) error {
	if !cfg.Logging.File.Enabled || strings.TrimSpace(cfg.Logging.File.Path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Logging.File.Path), 0o755); err != nil {
		return fmt.Errorf("logging.file.path: %w", err)
	}
	return nil
}
