// Package lockstore keeps one advisory lock file per job identifier.
//
// A lock file lives at <dir>/crontab_job_<job_id>.lock and holds the decimal
// pid of the holder. A record naming a dead or zombie process is stale and is
// removed on inspection. Unparseable content is corrupt and is removed too.
//
// In ModeAdvisory inspect and acquire are separate steps and two callers can
// both observe "not running" before either acquires. ModeAtomic closes that
// window by holding an exclusive flock on <lock>.guard across both steps.
package lockstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"cronlock/internal/liveness"
	"cronlock/pkg/logx"
)

var ErrInvalidID = errors.New("lockstore: invalid job id")

type Mode int

const (
	ModeAdvisory Mode = iota
	ModeAtomic
)

func (m Mode) String() string {
	if m == ModeAtomic {
		return "atomic"
	}
	return "advisory"
}

// ParseMode accepts "advisory", "atomic" or "" (advisory).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "advisory":
		return ModeAdvisory, nil
	case "atomic":
		return ModeAtomic, nil
	}
	return ModeAdvisory, fmt.Errorf("lockstore: unknown mode %q", s)
}

type CleanupKind string

const (
	CleanupStale   CleanupKind = "stale"
	CleanupCorrupt CleanupKind = "corrupt"
)

type Config struct {
	Dir  string
	Mode Mode
}

type Store struct {
	dir    string
	mode   Mode
	prober liveness.Prober
	log    logx.Logger

	// OnCleanup is called after a stale or corrupt record was removed.
	OnCleanup func(kind CleanupKind, jobID string, pid int)
}

func New(cfg Config, prober liveness.Prober, log logx.Logger) (*Store, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		dir = os.TempDir()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("lockstore: resolve dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("lockstore: create dir: %w", err)
	}
	if prober == nil {
		prober = liveness.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		dir:    abs,
		mode:   cfg.Mode,
		prober: prober,
		log:    log.With(logx.String("comp", "lockstore")),
	}, nil
}

func (s *Store) Dir() string { return s.dir }
func (s *Store) Mode() Mode  { return s.mode }

// ValidateID rejects identifiers that would not map to a distinct file
// directly inside the lock directory.
func ValidateID(jobID string) error {
	switch {
	case jobID == "", jobID == ".", jobID == "..":
		return fmt.Errorf("%w: %q", ErrInvalidID, jobID)
	case strings.ContainsAny(jobID, "/\\\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidID, jobID)
	}
	return nil
}

// Path returns the lock file location for jobID. It does not touch the
// filesystem.
func (s *Store) Path(jobID string) string {
	return filepath.Join(s.dir, "crontab_job_"+jobID+".lock")
}

// Inspect reports whether a live process holds the lock for jobID. Stale and
// corrupt records are deleted as a side effect.
func (s *Store) Inspect(jobID string) (bool, int, error) {
	if err := ValidateID(jobID); err != nil {
		return false, 0, err
	}
	path := s.Path(jobID)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, 0, nil
	}
	if err != nil {
		s.log.Error("read lock failed", logx.String("job_id", jobID), logx.Err(err))
		return false, 0, fmt.Errorf("lockstore: read %s: %w", path, err)
	}

	pid, perr := strconv.Atoi(strings.TrimSpace(string(raw)))
	if perr != nil || pid <= 0 {
		s.log.Warn("removing corrupt lock file",
			logx.String("job_id", jobID),
			logx.String("path", path),
			logx.String("content", truncate(string(raw), 64)),
		)
		if err := s.remove(path); err != nil {
			return false, 0, err
		}
		s.cleaned(CleanupCorrupt, jobID, 0)
		return false, 0, nil
	}

	if s.prober.IsRunning(pid) {
		return true, pid, nil
	}

	s.log.Info("removing stale lock file", logx.String("job_id", jobID), logx.Int("pid", pid))
	if err := s.remove(path); err != nil {
		return false, 0, err
	}
	s.cleaned(CleanupStale, jobID, pid)
	return false, 0, nil
}

// Acquire writes pid as the holder of jobID, replacing any previous content.
// The caller must have observed the lock as not held.
func (s *Store) Acquire(jobID string, pid int) error {
	if err := ValidateID(jobID); err != nil {
		return err
	}
	if pid <= 0 {
		return fmt.Errorf("lockstore: invalid pid %d", pid)
	}
	path := s.Path(jobID)
	if err := writeFileAtomic(path, []byte(strconv.Itoa(pid))); err != nil {
		s.log.Error("write lock failed", logx.String("job_id", jobID), logx.Int("pid", pid), logx.Err(err))
		return fmt.Errorf("lockstore: write %s: %w", path, err)
	}
	return nil
}

// Release deletes the lock for jobID. Releasing an absent lock is a no-op.
func (s *Store) Release(jobID string) error {
	if err := ValidateID(jobID); err != nil {
		return err
	}
	return s.remove(s.Path(jobID))
}

// ReleaseHolder deletes the lock only if it still names pid. It reports
// whether a record was removed.
func (s *Store) ReleaseHolder(jobID string, pid int) (bool, error) {
	if err := ValidateID(jobID); err != nil {
		return false, err
	}
	path := s.Path(jobID)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lockstore: read %s: %w", path, err)
	}
	if got, perr := strconv.Atoi(strings.TrimSpace(string(raw))); perr != nil || got != pid {
		return false, nil
	}
	if err := s.remove(path); err != nil {
		return false, err
	}
	return true, nil
}

// Guard serializes inspect+acquire across processes in ModeAtomic. In
// ModeAdvisory it returns immediately. The returned func must be called to
// release the guard.
func (s *Store) Guard(jobID string) (func(), error) {
	if s.mode != ModeAtomic {
		return func() {}, nil
	}
	if err := ValidateID(jobID); err != nil {
		return nil, err
	}
	fl := flock.New(s.Path(jobID) + ".guard")
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("lockstore: guard %s: %w", jobID, err)
	}
	return func() { _ = fl.Unlock() }, nil
}

// TryAcquire inspects and, if free, acquires the lock for pid under the
// guard. It returns the live holder's pid when the lock is taken.
func (s *Store) TryAcquire(jobID string, pid int) (bool, int, error) {
	unlock, err := s.Guard(jobID)
	if err != nil {
		return false, 0, err
	}
	defer unlock()

	running, holder, err := s.Inspect(jobID)
	if err != nil {
		return false, 0, err
	}
	if running {
		return false, holder, nil
	}
	if err := s.Acquire(jobID, pid); err != nil {
		return false, 0, err
	}
	return true, pid, nil
}

func (s *Store) remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Error("remove lock failed", logx.String("path", path), logx.Err(err))
		return fmt.Errorf("lockstore: remove %s: %w", path, err)
	}
	return nil
}

func (s *Store) cleaned(kind CleanupKind, jobID string, pid int) {
	if s.OnCleanup != nil {
		s.OnCleanup(kind, jobID, pid)
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
