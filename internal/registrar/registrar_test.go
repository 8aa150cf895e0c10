package registrar

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronlock/internal/crontab"
	"cronlock/internal/joblog"
	"cronlock/pkg/logx"
)

func newRegistrar(t *testing.T) (*Registrar, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "crontab")
	logs, err := joblog.NewDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	w := WrapperCommand{Executable: "/usr/local/bin/cronlock", LockDir: filepath.Join(dir, "locks")}
	return New(crontab.NewTable(crontab.FileBackend{Path: path}), w, logs, logx.Nop()), path
}

func TestValidate(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"* * * * *", "*/5 * * * *", "0 3 * * 1-5", "@hourly", "@daily", " @weekly "} {
		assert.NoError(t, Validate(ok), ok)
	}
	for _, bad := range []string{"", "* * * *", "61 * * * *", "@every 5m", "@reboot", "not a schedule"} {
		assert.ErrorIs(t, Validate(bad), ErrInvalidSchedule, bad)
	}
}

func TestRegisterWritesWrapperEntry(t *testing.T) {
	t.Parallel()
	r, path := newRegistrar(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, JobSpec{ID: "7", Name: "nightly backup", Command: "tar czf /tmp/b.tgz /etc", Schedule: "0 3 * * *"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))
	assert.True(t, strings.HasPrefix(line, "0 3 * * * /usr/local/bin/cronlock wrap --job-id 7 --log-file "))
	assert.Contains(t, line, "nightlybackup.log")
	assert.Contains(t, line, "-- 'tar czf /tmp/b.tgz /etc'")
	assert.True(t, strings.HasSuffix(line, "# cronlock:nightly backup"))
}

func TestRegisterRejectsInvalidSchedule(t *testing.T) {
	t.Parallel()
	r, path := newRegistrar(t)
	err := r.Register(context.Background(), JobSpec{ID: "1", Name: "x", Command: "true", Schedule: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	assert.NoFileExists(t, path)
}

func TestUpdateRenames(t *testing.T) {
	t.Parallel()
	r, _ := newRegistrar(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, JobSpec{ID: "1", Name: "old", Command: "true", Schedule: "@hourly"}))

	assert.ErrorIs(t, r.Update(ctx, "old", JobSpec{ID: "1", Name: "new", Command: "true", Schedule: "nope"}), ErrInvalidSchedule)
	_, ok, err := r.NextFireTime(ctx, "old", time.Now())
	require.NoError(t, err)
	assert.True(t, ok, "a rejected update must leave the old entry")

	require.NoError(t, r.Update(ctx, "old", JobSpec{ID: "1", Name: "new", Command: "true", Schedule: "@daily"}))
	reg, err := r.Registered(ctx)
	require.NoError(t, err)
	assert.Len(t, reg, 1)
	assert.Equal(t, "@daily", reg["new"].Rule)
}

func TestUnregister(t *testing.T) {
	t.Parallel()
	r, _ := newRegistrar(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, JobSpec{ID: "1", Name: "a", Command: "true", Schedule: "@hourly"}))

	n, err := r.Unregister(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = r.Unregister(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNextFireTime(t *testing.T) {
	t.Parallel()
	r, _ := newRegistrar(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 10, 17, 0, 0, time.UTC)

	_, ok, err := r.NextFireTime(ctx, "missing", now)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Register(ctx, JobSpec{ID: "1", Name: "q", Command: "true", Schedule: "*/15 * * * *"}))
	next, ok, err := r.NextFireTime(ctx, "q", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 14, 10, 30, 0, 0, time.UTC), next)
}

func TestWrapperAction(t *testing.T) {
	t.Parallel()
	w := WrapperCommand{Executable: "/opt/cron lock/bin", LockDir: "/var/lock", Atomic: true, Shell: "/bin/bash"}
	got, err := w.Action("3", "/var/log/j.log", "echo 'hi'")
	require.NoError(t, err)
	assert.Equal(t, `'/opt/cron lock/bin' wrap --job-id 3 --log-file /var/log/j.log --lock-dir /var/lock --atomic --shell /bin/bash -- 'echo '\''hi'\'''`, got)

	_, err = w.Action("3", "/l", "a\nb")
	assert.Error(t, err)
	_, err = WrapperCommand{}.Action("3", "/l", "a")
	assert.Error(t, err)
}
