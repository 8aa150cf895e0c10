package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StateDir is where cronlock keeps logs and its database by default:
// $XDG_STATE_HOME/cronlock, else ~/.local/state/cronlock.
func StateDir() string {
	if d := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); d != "" {
		return filepath.Join(d, "cronlock")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "cronlock")
	}
	return filepath.Join(os.TempDir(), "cronlock")
}

// Defaults returns a complete configuration usable without a file.
func Defaults() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every empty field.
func (c *Config) ApplyDefaults() {
	state := StateDir()
	setDefault(&c.Paths.LockDir, os.TempDir())
	setDefault(&c.Paths.LogDir, filepath.Join(state, "logs"))
	setDefault(&c.Paths.WorkDir, os.TempDir())

	setDefault(&c.Lock.Mode, "advisory")
	setDefault(&c.Launch.Shell, "/bin/sh")
	setDefault(&c.Launch.Grace, "300ms")

	setDefault(&c.Cron.Backend, "command")

	setDefault(&c.Storage.Driver, "sqlite")
	setDefault(&c.Storage.Path, filepath.Join(state, "cronlock.db"))

	setDefault(&c.HTTP.Addr, "127.0.0.1:8080")
	setDefault(&c.HTTP.ReadTimeout, "15s")
	setDefault(&c.HTTP.WriteTimeout, "15s")
	setDefault(&c.HTTP.IdleTimeout, "60s")

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Telegram.MinLevel, "error")
}

// Resolve makes relative paths absolute against base (the config file's
// directory).
func (c *Config) Resolve(base string) {
	if base == "" {
		return
	}
	for _, p := range []*string{
		&c.Paths.LockDir, &c.Paths.LogDir, &c.Paths.WorkDir,
		&c.Storage.Path, &c.Logging.File.Path, &c.Cron.Path,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Validate checks enumerations and durations.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Lock.Mode) {
	case "advisory", "atomic":
	default:
		errs = append(errs, fmt.Errorf("lock.mode: unknown mode %q", c.Lock.Mode))
	}
	switch strings.ToLower(c.Cron.Backend) {
	case "command":
	case "file":
		if strings.TrimSpace(c.Cron.Path) == "" {
			errs = append(errs, errors.New("cron.path is required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cron.backend: unknown backend %q", c.Cron.Backend))
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "file", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := c.Durations(); err != nil {
		errs = append(errs, err)
	}
	if c.HTTP.RunRatePerSec < 0 {
		errs = append(errs, errors.New("http.run_rate_per_sec must be >= 0"))
	}
	if c.Logging.Telegram.Enabled && (strings.TrimSpace(c.Telegram.Token) == "" || c.Telegram.ChatID == 0) {
		errs = append(errs, errors.New("logging.telegram requires telegram.token and telegram.chat_id"))
	}
	return errors.Join(errs...)
}

func setDefault(p *string, v string) {
	if strings.TrimSpace(*p) == "" {
		*p = v
	}
}
