// Package launch starts jobs on demand as detached processes that hold the
// job's lock for as long as they run.
package launch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"cronlock/internal/joblog"
	"cronlock/internal/liveness"
	"cronlock/internal/lockstore"
	"cronlock/pkg/logx"
)

type Supervisor struct {
	cfg    Config
	locks  *lockstore.Store
	prober liveness.Prober
	defs   Definitions
	logs   *joblog.Dir
	log    logx.Logger
}

func New(cfg Config, locks *lockstore.Store, prober liveness.Prober, defs Definitions, logs *joblog.Dir, log logx.Logger) *Supervisor {
	if strings.TrimSpace(cfg.WorkDir) == "" {
		cfg.WorkDir = os.TempDir()
	}
	if strings.TrimSpace(cfg.Shell) == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if prober == nil {
		prober = liveness.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Supervisor{
		cfg:    cfg,
		locks:  locks,
		prober: prober,
		defs:   defs,
		logs:   logs,
		log:    log.With(logx.String("comp", "launch")),
	}
}

// RunManually starts jobID unless a live process already holds its lock. It
// returns once the child is past the grace window or has exited; it never
// waits for the job itself.
func (s *Supervisor) RunManually(ctx context.Context, jobID string) Result {
	log := s.log.With(logx.String("job_id", jobID))

	unlock, err := s.locks.Guard(jobID)
	if err != nil {
		return failed(log, "lock guard", err)
	}
	defer unlock()

	running, holder, err := s.locks.Inspect(jobID)
	if err != nil {
		return failed(log, "inspect lock", err)
	}
	if running {
		log.Info("run rejected: already running", logx.Int("pid", holder))
		return Result{
			Outcome: OutcomeAlreadyRunning,
			PID:     holder,
			Message: fmt.Sprintf("Job is already running (pid %d)", holder),
		}
	}

	def, err := s.defs.Definition(ctx, jobID)
	if errors.Is(err, ErrNotFound) {
		return Result{Outcome: OutcomeNotFound, Message: "Job not found"}
	}
	if err != nil {
		return failed(log, "load definition", err)
	}

	script, err := s.writeScript(jobID, scriptParams{
		LockFile: s.locks.Path(jobID),
		LogFile:  s.logs.Path(def.Name),
		Command:  def.Command,
	})
	if err != nil {
		return failed(log, "write launcher", err)
	}

	cmd := exec.Command(s.cfg.Shell, script)
	cmd.Dir = s.cfg.WorkDir
	cmd.SysProcAttr = detachAttr()
	// nil stdio means the null device.
	if err := cmd.Start(); err != nil {
		_ = os.Remove(script)
		log.Warn("spawn failed", logx.String("shell", s.cfg.Shell), logx.Err(err))
		return spawnFailed(0, err)
	}
	pid := cmd.Process.Pid
	log = log.With(logx.Int("pid", pid))

	if err := s.locks.Acquire(jobID, pid); err != nil {
		killGroup(pid)
		go func() {
			_ = cmd.Wait()
			_ = os.Remove(script)
		}()
		return failed(log, "acquire lock", err)
	}

	exited := make(chan error, 1)
	go s.reap(cmd, jobID, script, exited)

	timer := time.NewTimer(s.cfg.Grace)
	defer timer.Stop()

	select {
	case werr := <-exited:
		return settled(log, pid, werr)
	case <-timer.C:
	}

	// The child may have been reaped between the timer firing and now.
	select {
	case werr := <-exited:
		return settled(log, pid, werr)
	default:
	}

	if !s.prober.IsRunning(pid) {
		// A child gone from the process table is about to be reported by
		// reap; give it a moment so a clean exit is not misread.
		select {
		case werr := <-exited:
			return settled(log, pid, werr)
		case <-time.After(reapWait):
		}
		s.releaseHolder(jobID, pid)
		log.Warn("job not alive after grace period")
		return spawnFailed(pid, errors.New("process exited during grace period"))
	}

	log.Info("job started")
	return Result{
		Outcome: OutcomeStarted,
		PID:     pid,
		Message: fmt.Sprintf("Job started (pid %d)", pid),
	}
}

// reap waits for the child so it never lingers as a zombie, then clears any
// lock record still naming it.
func (s *Supervisor) reap(cmd *exec.Cmd, jobID, script string, exited chan<- error) {
	err := cmd.Wait()
	s.releaseHolder(jobID, cmd.Process.Pid)
	if rmErr := os.Remove(script); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		s.log.Debug("remove launcher", logx.String("path", script), logx.Err(rmErr))
	}
	exited <- err
}

func (s *Supervisor) releaseHolder(jobID string, pid int) {
	if _, err := s.locks.ReleaseHolder(jobID, pid); err != nil {
		s.log.Error("release lock failed", logx.String("job_id", jobID), logx.Int("pid", pid), logx.Err(err))
	}
}

func (s *Supervisor) writeScript(jobID string, p scriptParams) (string, error) {
	if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.cfg.WorkDir, "crontab_wrapper_"+jobID+"_*.sh")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.WriteString(renderScript(p)); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Chmod(0o700); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return filepath.Clean(name), nil
}

// settled turns a wait result seen within the grace period into a Result.
func settled(log logx.Logger, pid int, werr error) Result {
	if werr != nil {
		log.Warn("job died during grace period", logx.Err(werr))
		return spawnFailed(pid, werr)
	}
	log.Info("job completed during grace period")
	return Result{
		Outcome:   OutcomeStarted,
		PID:       pid,
		Completed: true,
		Message:   fmt.Sprintf("Job completed (pid %d)", pid),
	}
}

func spawnFailed(pid int, err error) Result {
	return Result{
		Outcome: OutcomeSpawnFailed,
		PID:     pid,
		Message: "Job failed to start; check the job log",
		Err:     err,
	}
}

func failed(log logx.Logger, op string, err error) Result {
	log.Error(op+" failed", logx.Err(err))
	return Result{
		Outcome: OutcomeFailed,
		Message: "Operational failure: " + op,
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}
