package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, os.TempDir(), cfg.Paths.LockDir)
	assert.Equal(t, "advisory", cfg.Lock.Mode)
	assert.Equal(t, "300ms", cfg.Launch.Grace)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestParseYAMLResolvesRelativePaths(t *testing.T) {
	t.Parallel()
	path := write(t, "cronlock.yaml", `
paths:
  lock_dir: locks
  log_dir: /var/log/cronlock
lock:
  mode: atomic
launch:
  grace: 500ms
storage:
  driver: file
  path: state/jobs.json
`)
	cfg, err := NewManager(path).Parse()
	require.NoError(t, err)
	dir := filepath.Dir(path)
	assert.Equal(t, filepath.Join(dir, "locks"), cfg.Paths.LockDir)
	assert.Equal(t, "/var/log/cronlock", cfg.Paths.LogDir)
	assert.Equal(t, filepath.Join(dir, "state/jobs.json"), cfg.Storage.Path)
	assert.Equal(t, "atomic", cfg.Lock.Mode)
	assert.Equal(t, "500ms", cfg.Launch.Grace)
	assert.Equal(t, "/bin/sh", cfg.Launch.Shell)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := write(t, "c.json", `{"paths":{"lock_dir":"/tmp"},"bogus":1}`)
	_, err := NewManager(path).Parse()
	assert.Error(t, err)
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := write(t, "c.json", `{} {}`)
	_, err := NewManager(path).Parse()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := map[string]func(*Config){
		"lock mode":     func(c *Config) { c.Lock.Mode = "strict" },
		"cron backend":  func(c *Config) { c.Cron.Backend = "systemd" },
		"cron file":     func(c *Config) { c.Cron.Backend = "file" },
		"driver":        func(c *Config) { c.Storage.Driver = "mongo" },
		"grace":         func(c *Config) { c.Launch.Grace = "soon" },
		"negative rate": func(c *Config) { c.HTTP.RunRatePerSec = -1 },
		"telegram":      func(c *Config) { c.Logging.Telegram.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := Defaults()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager("")
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())
}

func TestSummarizeChangeHidesToken(t *testing.T) {
	t.Parallel()
	a := Defaults()
	b := Defaults()
	b.Logging.Level = "debug"
	b.Telegram.Token = "secret"

	changed, attrs := SummarizeChange(a, b)
	assert.Equal(t, []string{"logging", "telegram"}, changed)
	assert.NotEmpty(t, attrs)
	assert.False(t, HotReloadable(changed))
	assert.True(t, HotReloadable([]string{"logging"}))
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	path := write(t, "c.json", `{"logging":{"level":"info"}}`)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher time to attach before writing.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o644))

	select {
	case cfg := <-sub:
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "debug", m.Get().Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	cancel()
	<-done
}

func TestDurations(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	cfg.Launch.Grace = ""
	cfg.HTTP.IdleTimeout = "2m"
	d, err := cfg.Durations()
	require.NoError(t, err)
	assert.Equal(t, DefaultLaunchGrace, d.LaunchGrace)
	assert.Equal(t, DefaultBusyTimeout, d.BusyTimeout)
	assert.Equal(t, 2*time.Minute, d.IdleTimeout)

	cfg.Launch.Grace = "-1s"
	cfg.HTTP.ReadTimeout = "soon"
	_, err = cfg.Durations()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch.grace")
	assert.Contains(t, err.Error(), "http.read_timeout")
	assert.Error(t, cfg.Validate())
}
