package launch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronlock/internal/joblog"
	"cronlock/internal/liveness"
	"cronlock/internal/lockstore"
	"cronlock/pkg/logx"
)

type fixture struct {
	sup     *Supervisor
	cfg     Config
	defs    Definitions
	locks   *lockstore.Store
	logs    *joblog.Dir
	workDir string
	lookups atomic.Int32
}

func newFixture(t *testing.T, cfg Config, defs map[string]Definition) *fixture {
	t.Helper()
	root := t.TempDir()
	locks, err := lockstore.New(lockstore.Config{Dir: filepath.Join(root, "locks")}, liveness.New(), logx.Nop())
	require.NoError(t, err)
	logs, err := joblog.NewDir(filepath.Join(root, "logs"))
	require.NoError(t, err)

	f := &fixture{locks: locks, logs: logs, workDir: filepath.Join(root, "work")}
	cfg.WorkDir = f.workDir
	lookup := DefinitionsFunc(func(_ context.Context, id string) (Definition, error) {
		f.lookups.Add(1)
		d, ok := defs[id]
		if !ok {
			return Definition{}, ErrNotFound
		}
		return d, nil
	})
	f.cfg, f.defs = cfg, lookup
	f.sup = New(cfg, locks, liveness.New(), lookup, logs, logx.Nop())
	return f
}

// withProber rebuilds the supervisor around p.
func (f *fixture) withProber(p liveness.Prober) {
	f.sup = New(f.cfg, f.locks, p, f.defs, f.logs, logx.Nop())
}

func (f *fixture) scripts(t *testing.T) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(f.workDir, "crontab_wrapper_*.sh"))
	require.NoError(t, err)
	return m
}

func TestRunManuallyStartsAndCleansUp(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, map[string]Definition{
		"backup": {ID: "backup", Name: "nightly backup", Command: "echo hi; sleep 1"},
	})

	res := f.sup.RunManually(context.Background(), "backup")
	require.Equal(t, OutcomeStarted, res.Outcome, res.Message)
	require.True(t, res.OK())
	assert.False(t, res.Completed)
	assert.Positive(t, res.PID)

	running, pid, err := f.locks.Inspect("backup")
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, res.PID, pid)

	assert.Eventually(t, func() bool {
		running, _, err := f.locks.Inspect("backup")
		return err == nil && !running
	}, 3*time.Second, 20*time.Millisecond)
	assert.NoFileExists(t, f.locks.Path("backup"))

	assert.Eventually(t, func() bool { return len(f.scripts(t)) == 0 }, time.Second, 20*time.Millisecond)

	out, err := f.logs.Load("nightly backup")
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z][a-z]{2} \d{2} \d{2}:\d{2}:\d{2} hi\n$`, out)
}

func TestRunManuallyShortCommandCompletes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, map[string]Definition{
		"backup": {ID: "backup", Name: "backup", Command: "echo hi"},
	})

	res := f.sup.RunManually(context.Background(), "backup")
	require.Equal(t, OutcomeStarted, res.Outcome, res.Message)
	assert.True(t, res.Completed)
	assert.Positive(t, res.PID)
	assert.Equal(t, fmt.Sprintf("Job completed (pid %d)", res.PID), res.Message)

	running, pid, err := f.locks.Inspect("backup")
	require.NoError(t, err)
	assert.False(t, running)
	assert.Zero(t, pid)
	assert.NoFileExists(t, f.locks.Path("backup"))
	assert.Eventually(t, func() bool { return len(f.scripts(t)) == 0 }, time.Second, 20*time.Millisecond)

	out, err := f.logs.Load("backup")
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z][a-z]{2} \d{2} \d{2}:\d{2}:\d{2} hi\n$`, out)
}

func TestRunManuallyRejectsLiveHolder(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, map[string]Definition{
		"backup": {ID: "backup", Name: "backup", Command: "echo hi"},
	})
	require.NoError(t, f.locks.Acquire("backup", os.Getpid()))

	res := f.sup.RunManually(context.Background(), "backup")
	assert.Equal(t, OutcomeAlreadyRunning, res.Outcome)
	assert.Equal(t, os.Getpid(), res.PID)
	assert.Contains(t, res.Message, "already running")

	assert.Zero(t, f.lookups.Load(), "nothing may happen past the lock check")
	assert.Empty(t, f.scripts(t))
	_, err := os.Stat(f.logs.Path("backup"))
	assert.True(t, os.IsNotExist(err))

	running, pid, err := f.locks.Inspect("backup")
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
}

func TestRunManuallyReplacesStaleLock(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, map[string]Definition{
		"ghost": {ID: "ghost", Name: "ghost", Command: "echo hi; sleep 1"},
	})
	require.NoError(t, os.WriteFile(f.locks.Path("ghost"), []byte("999999"), 0o644))

	res := f.sup.RunManually(context.Background(), "ghost")
	require.Equal(t, OutcomeStarted, res.Outcome, res.Message)
	assert.NotEqual(t, 999999, res.PID)
}

func TestRunManuallyBadInterpreter(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Shell: "/nonexistent/interpreter", Grace: 500 * time.Millisecond}, map[string]Definition{
		"broken": {ID: "broken", Name: "broken", Command: "echo hi"},
	})

	start := time.Now()
	res := f.sup.RunManually(context.Background(), "broken")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, OutcomeSpawnFailed, res.Outcome)
	assert.Error(t, res.Err)
	assert.Contains(t, res.Message, "log")
	assert.NoFileExists(t, f.locks.Path("broken"))
	assert.Empty(t, f.scripts(t))
}

func TestRunManuallyLauncherExitsNonZero(t *testing.T) {
	t.Parallel()
	// /bin/false ignores the script and exits 1 straight away.
	f := newFixture(t, Config{Shell: "/bin/false", Grace: 2 * time.Second}, map[string]Definition{
		"x": {ID: "x", Name: "x", Command: "echo hi"},
	})

	res := f.sup.RunManually(context.Background(), "x")
	assert.Equal(t, OutcomeSpawnFailed, res.Outcome)
	assert.Positive(t, res.PID)
	assert.NoFileExists(t, f.locks.Path("x"))
}

func TestRunManuallyCompletesInsideGrace(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Grace: 3 * time.Second}, map[string]Definition{
		"ok":   {ID: "ok", Name: "ok", Command: "echo done"},
		"fail": {ID: "fail", Name: "fail", Command: "echo boom; exit 3"},
		"bare": {ID: "bare", Name: "bare", Command: "false; exit 3"},
	})

	res := f.sup.RunManually(context.Background(), "ok")
	require.Equal(t, OutcomeStarted, res.Outcome, res.Message)
	assert.True(t, res.Completed)
	assert.NoFileExists(t, f.locks.Path("ok"))
	st, err := f.logs.Status("ok")
	require.NoError(t, err)
	assert.Equal(t, joblog.StatusSuccess, st)

	res = f.sup.RunManually(context.Background(), "fail")
	require.Equal(t, OutcomeStarted, res.Outcome, res.Message)
	assert.True(t, res.Completed)
	st, err = f.logs.Status("fail")
	require.NoError(t, err)
	assert.Equal(t, joblog.StatusFailed, st)
	out, err := f.logs.Load("fail")
	require.NoError(t, err)
	assert.Contains(t, out, " boom\n")

	res = f.sup.RunManually(context.Background(), "bare")
	require.Equal(t, OutcomeStarted, res.Outcome, res.Message)
	assert.True(t, res.Completed)
	st, err = f.logs.Status("bare")
	require.NoError(t, err)
	assert.Equal(t, joblog.StatusFailed, st)
}

func TestRunManuallyExitRacingGraceTimer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Grace: 50 * time.Millisecond}, map[string]Definition{
		"edge": {ID: "edge", Name: "edge", Command: "sleep 0.3"},
	})
	// Report the child gone only once its own trap has dropped the lock, so
	// the timer always fires first and the exit lands right behind it.
	f.withProber(liveness.ProberFunc(func(int) bool {
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			if _, err := os.Stat(f.locks.Path("edge")); os.IsNotExist(err) {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		return false
	}))

	res := f.sup.RunManually(context.Background(), "edge")
	assert.Equal(t, OutcomeStarted, res.Outcome, res.Message)
	assert.True(t, res.Completed)
	assert.NoError(t, res.Err)
}

func TestRunManuallyGoneAfterGraceIsSpawnFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Grace: 50 * time.Millisecond}, map[string]Definition{
		"lost": {ID: "lost", Name: "lost", Command: "sleep 30"},
	})
	f.withProber(liveness.ProberFunc(func(int) bool { return false }))

	res := f.sup.RunManually(context.Background(), "lost")
	t.Cleanup(func() {
		if res.PID > 0 {
			killGroup(res.PID)
		}
	})
	assert.Equal(t, OutcomeSpawnFailed, res.Outcome)
	assert.Positive(t, res.PID)
	assert.Error(t, res.Err)
	assert.NoFileExists(t, f.locks.Path("lost"))
}

func TestRunManuallyNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, nil)
	res := f.sup.RunManually(context.Background(), "missing")
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.False(t, res.OK())
	assert.Empty(t, f.scripts(t))
}

func TestRunManuallyInvalidID(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, nil)
	res := f.sup.RunManually(context.Background(), "../etc")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, lockstore.ErrInvalidID)
}

func TestRunManuallyAtomicModeSecondCallerRejected(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	locks, err := lockstore.New(lockstore.Config{Dir: root, Mode: lockstore.ModeAtomic}, liveness.New(), logx.Nop())
	require.NoError(t, err)
	logs, err := joblog.NewDir(filepath.Join(root, "logs"))
	require.NoError(t, err)
	defs := DefinitionsFunc(func(context.Context, string) (Definition, error) {
		return Definition{ID: "1", Name: "one", Command: "sleep 1"}, nil
	})
	sup := New(Config{WorkDir: root}, locks, nil, defs, logs, logx.Nop())

	first := sup.RunManually(context.Background(), "1")
	require.Equal(t, OutcomeStarted, first.Outcome, first.Message)
	second := sup.RunManually(context.Background(), "1")
	assert.Equal(t, OutcomeAlreadyRunning, second.Outcome)
	assert.Equal(t, first.PID, second.PID)
}

func TestRenderScript(t *testing.T) {
	t.Parallel()
	s := renderScript(scriptParams{
		LockFile: "/tmp/crontab_job_1.lock",
		LogFile:  "/var/log/it's.log",
		Command:  "echo 50%\n",
	})
	assert.True(t, strings.HasPrefix(s, "#!/bin/sh\n"))
	assert.Contains(t, s, "LOCK_FILE='/tmp/crontab_job_1.lock'\n")
	assert.Contains(t, s, `LOG_FILE='/var/log/it'\''s.log'`)
	assert.Contains(t, s, "trap 'rm -f \"$LOCK_FILE\" \"$LOCK_FILE.$$\" \"$0\"' EXIT\n")
	assert.Contains(t, s, `echo $$ > "$LOCK_FILE.$$" && mv -f "$LOCK_FILE.$$" "$LOCK_FILE"`)
	assert.Contains(t, s, "trap '' HUP\n")
	assert.Contains(t, s, "{\n(\necho 50%\n) || echo Failed\n}")
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "started", OutcomeStarted.String())
	assert.Equal(t, "already_running", OutcomeAlreadyRunning.String())
	assert.Equal(t, "not_found", OutcomeNotFound.String())
	assert.Equal(t, "spawn_failed", OutcomeSpawnFailed.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
}
