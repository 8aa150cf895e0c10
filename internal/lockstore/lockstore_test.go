package lockstore

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronlock/internal/liveness"
	"cronlock/pkg/logx"
)

// fakeProber treats the listed pids as alive.
func fakeProber(alive ...int) liveness.Prober {
	set := map[int]bool{}
	for _, p := range alive {
		set[p] = true
	}
	return liveness.ProberFunc(func(pid int) bool { return set[pid] })
}

func newStore(t *testing.T, mode Mode, prober liveness.Prober) *Store {
	t.Helper()
	s, err := New(Config{Dir: t.TempDir(), Mode: mode}, prober, logx.Nop())
	require.NoError(t, err)
	return s
}

func TestPath(t *testing.T) {
	t.Parallel()
	s := newStore(t, ModeAdvisory, fakeProber())
	assert.Equal(t, filepath.Join(s.Dir(), "crontab_job_42.lock"), s.Path("42"))
	assert.NotEqual(t, s.Path("4"), s.Path("42"))
}

func TestValidateID(t *testing.T) {
	t.Parallel()
	for _, id := range []string{"", ".", "..", "a/b", "a\\b", "x\x00"} {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidID, "id %q", id)
	}
	for _, id := range []string{"1", "backup", "job-7_a.b"} {
		assert.NoError(t, ValidateID(id), "id %q", id)
	}
}

func TestInspectAbsent(t *testing.T) {
	t.Parallel()
	s := newStore(t, ModeAdvisory, fakeProber())
	running, pid, err := s.Inspect("1")
	require.NoError(t, err)
	assert.False(t, running)
	assert.Zero(t, pid)
}

func TestAcquireThenInspectLive(t *testing.T) {
	t.Parallel()
	s := newStore(t, ModeAdvisory, fakeProber(4242))
	require.NoError(t, s.Acquire("1", 4242))

	raw, err := os.ReadFile(s.Path("1"))
	require.NoError(t, err)
	assert.Equal(t, "4242", string(raw))

	running, pid, err := s.Inspect("1")
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, 4242, pid)
	assert.FileExists(t, s.Path("1"))
}

func TestInspectRemovesStale(t *testing.T) {
	t.Parallel()
	s := newStore(t, ModeAdvisory, fakeProber())
	var kinds []CleanupKind
	s.OnCleanup = func(kind CleanupKind, _ string, _ int) { kinds = append(kinds, kind) }

	require.NoError(t, os.WriteFile(s.Path("1"), []byte("999999"), 0o644))

	running, pid, err := s.Inspect("1")
	require.NoError(t, err)
	assert.False(t, running)
	assert.Zero(t, pid)
	assert.NoFileExists(t, s.Path("1"))
	assert.Equal(t, []CleanupKind{CleanupStale}, kinds)
}

func TestInspectRemovesCorrupt(t *testing.T) {
	t.Parallel()
	for name, content := range map[string]string{
		"text":     "abc",
		"empty":    "",
		"negative": "-5",
		"zero":     "0",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := newStore(t, ModeAdvisory, fakeProber(1))
			var kinds []CleanupKind
			s.OnCleanup = func(kind CleanupKind, _ string, _ int) { kinds = append(kinds, kind) }
			require.NoError(t, os.WriteFile(s.Path("7"), []byte(content), 0o644))

			running, _, err := s.Inspect("7")
			require.NoError(t, err)
			assert.False(t, running)
			assert.NoFileExists(t, s.Path("7"))
			assert.Equal(t, []CleanupKind{CleanupCorrupt}, kinds)
		})
	}
}

func TestInspectToleratesWhitespace(t *testing.T) {
	t.Parallel()
	s := newStore(t, ModeAdvisory, fakeProber(77))
	require.NoError(t, os.WriteFile(s.Path("1"), []byte("77\n"), 0o644))
	running, pid, err := s.Inspect("1")
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, 77, pid)
}

func TestInspectReadErrorIsReturned(t *testing.T) {
	t.Parallel()
	s := newStore(t, ModeAdvisory, fakeProber())
	// A directory in place of the lock file cannot be read as a file.
	require.NoError(t, os.Mkdir(s.Path("1"), 0o755))
	_, _, err := s.Inspect("1")
	assert.Error(t, err)
}

func TestAcquireReplacesContent(t *testing.T) {
	t.Parallel()
	s := newStore(t, ModeAdvisory, fakeProber())
	require.NoError(t, os.WriteFile(s.Path("1"), []byte("123456789"), 0o644))
	require.NoError(t, s.Acquire("1", 5))
	raw, err := os.ReadFile(s.Path("1"))
	require.NoError(t, err)
	assert.Equal(t, "5", string(raw))
}

func TestAcquireRejectsBadInput(t *testing.T) {
	t.Parallel()
	s := newStore(t, ModeAdvisory, fakeProber())
	assert.ErrorIs(t, s.Acquire("../x", 1), ErrInvalidID)
	assert.Error(t, s.Acquire("1", 0))
}

func TestReleaseIdempotent(t *testing.T) {
	t.Parallel()
	s := newStore(t, ModeAdvisory, fakeProber())
	require.NoError(t, s.Release("1"))
	require.NoError(t, s.Acquire("1", 10))
	require.NoError(t, s.Release("1"))
	require.NoError(t, s.Release("1"))
	assert.NoFileExists(t, s.Path("1"))
}

func TestReleaseHolderOnlyRemovesOwnRecord(t *testing.T) {
	t.Parallel()
	s := newStore(t, ModeAdvisory, fakeProber())
	require.NoError(t, s.Acquire("1", 10))

	removed, err := s.ReleaseHolder("1", 11)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.FileExists(t, s.Path("1"))

	removed, err = s.ReleaseHolder("1", 10)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoFileExists(t, s.Path("1"))

	removed, err = s.ReleaseHolder("1", 10)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestTryAcquire(t *testing.T) {
	t.Parallel()
	for _, mode := range []Mode{ModeAdvisory, ModeAtomic} {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()
			s := newStore(t, mode, fakeProber(100))

			ok, holder, err := s.TryAcquire("1", 100)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 100, holder)

			ok, holder, err = s.TryAcquire("1", 200)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, 100, holder)
		})
	}
}

func TestAtomicModeAdmitsOneWinner(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	prober := liveness.ProberFunc(func(pid int) bool { return pid >= 1000 })

	const n = 16
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			// Separate Store values model separate processes sharing the dir.
			s, err := New(Config{Dir: dir, Mode: ModeAtomic}, prober, logx.Nop())
			if err != nil {
				t.Error(err)
				return
			}
			ok, _, err := s.TryAcquire("shared", pid)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}(1000 + i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	raw, err := os.ReadFile(filepath.Join(dir, "crontab_job_shared.lock"))
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(raw))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pid, 1000)
}

func TestGuardAdvisoryIsNoop(t *testing.T) {
	t.Parallel()
	s := newStore(t, ModeAdvisory, fakeProber())
	unlock, err := s.Guard("1")
	require.NoError(t, err)
	unlock()
	assert.NoFileExists(t, s.Path("1")+".guard")
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAdvisory, m)
	m, err = ParseMode("ATOMIC")
	require.NoError(t, err)
	assert.Equal(t, ModeAtomic, m)
	_, err = ParseMode("strict")
	assert.Error(t, err)
}

func TestNewDefaultsToTempDir(t *testing.T) {
	t.Parallel()
	s, err := New(Config{}, nil, logx.Nop())
	require.NoError(t, err)
	abs, _ := filepath.Abs(os.TempDir())
	assert.Equal(t, abs, s.Dir())
}
