package joblog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDir(t *testing.T) *Dir {
	t.Helper()
	d, err := NewDir(filepath.Join(t.TempDir(), "logs"))
	require.NoError(t, err)
	return d
}

func TestPathStripsWhitespace(t *testing.T) {
	t.Parallel()
	d := newDir(t)
	assert.Equal(t, filepath.Join(d.Root(), "nightlybackup.log"), d.Path("nightly backup"))
	assert.Equal(t, filepath.Join(d.Root(), "ab.log"), d.Path("a/b"))
	assert.Equal(t, filepath.Join(d.Root(), "_.log"), d.Path(" "))
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()
	d := newDir(t)
	got, err := d.Load("x")
	require.NoError(t, err)
	assert.Equal(t, NoLogYet, got)
}

func TestClearCreatesAndTruncates(t *testing.T) {
	t.Parallel()
	d := newDir(t)
	require.NoError(t, d.Clear("x"))
	got, err := d.Load("x")
	require.NoError(t, err)
	assert.Empty(t, got)

	f, err := d.OpenAppend("x")
	require.NoError(t, err)
	_, _ = f.WriteString("hello\n")
	require.NoError(t, f.Close())

	require.NoError(t, d.Clear("x"))
	got, err = d.Load("x")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	d := newDir(t)
	require.NoError(t, d.Delete("x"))
	require.NoError(t, d.Clear("x"))
	require.NoError(t, d.Delete("x"))
	_, err := os.Stat(d.Path("x"))
	assert.True(t, os.IsNotExist(err))
}

func TestStatus(t *testing.T) {
	t.Parallel()
	d := newDir(t)

	st, err := d.Status("x")
	require.NoError(t, err)
	assert.Equal(t, StatusNoLog, st)

	write := func(s string) {
		require.NoError(t, os.MkdirAll(d.Root(), 0o755))
		require.NoError(t, os.WriteFile(d.Path("x"), []byte(s), 0o644))
	}

	write("Oct 14 10:00:00 ok\n")
	st, err = d.Status("x")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, st)

	write("Oct 14 10:00:00 boom\nOct 14 10:00:01 Failed\n")
	st, err = d.Status("x")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st)

	write("\n\n")
	st, err = d.Status("x")
	require.NoError(t, err)
	assert.Equal(t, StatusNoLog, st)
}

func TestTimestampWriter(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	w := NewTimestampWriter(&out)
	w.now = func() time.Time { return time.Date(2026, 10, 14, 9, 5, 7, 0, time.UTC) }

	_, err := w.Write([]byte("one\ntw"))
	require.NoError(t, err)
	_, err = w.Write([]byte("o\nthree"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	require.NoError(t, w.Line(FailedMarker))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"Oct 14 09:05:07 one",
		"Oct 14 09:05:07 two",
		"Oct 14 09:05:07 three",
		"Oct 14 09:05:07 Failed",
	}, lines)
	assert.Equal(t, StatusFailed, statusOf(out.Bytes()))
}

func TestTimestampWriterFlushEmpty(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	w := NewTimestampWriter(&out)
	require.NoError(t, w.Flush())
	assert.Zero(t, out.Len())
}
