// Package wrapper runs one scheduled job invocation under the job's lock.
//
// It is the target of the crontab entries written by the registrar: each
// firing execs `cronlock wrap`, which lands here.
package wrapper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cronlock/internal/joblog"
	"cronlock/internal/lockstore"
	"cronlock/pkg/logx"
)

type Options struct {
	JobID   string
	Command string
	Shell   string
	LogPath string
	// StopGrace bounds how long a cancelled command may take to exit after
	// SIGTERM before it is killed.
	StopGrace time.Duration
	// Report, when set, receives "skipped", "ok" or "failed" once the run
	// settles.
	Report func(result string)
}

func (o Options) report(result string) {
	if o.Report != nil {
		o.Report(result)
	}
}

// Skipped is returned as the exit code when another process holds the lock.
const Skipped = 0

// Run acquires the lock for opts.JobID and executes the command, returning
// its exit code. When the lock is held by a live process the run is skipped.
// The lock is released on every return path once acquired.
func Run(ctx context.Context, opts Options, locks *lockstore.Store, log logx.Logger) (int, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return 2, errors.New("wrapper: empty command")
	}
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "wrapper"), logx.String("job_id", opts.JobID))

	acquired, holder, err := locks.TryAcquire(opts.JobID, os.Getpid())
	if err != nil {
		return 1, fmt.Errorf("wrapper: lock: %w", err)
	}
	if !acquired {
		log.Info("skipping run: already running", logx.Int("pid", holder))
		opts.report("skipped")
		return Skipped, nil
	}
	defer func() {
		if err := locks.Release(opts.JobID); err != nil {
			log.Error("release lock failed", logx.Err(err))
		}
	}()

	signal.Ignore(syscall.SIGHUP)

	out, err := joblog.OpenAppend(opts.LogPath)
	if err != nil {
		return 1, err
	}
	defer out.Close()
	stamp := joblog.NewTimestampWriter(out)

	cmd := exec.CommandContext(ctx, opts.Shell, "-c", opts.Command)
	cmd.Stdout = stamp
	cmd.Stderr = stamp
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = opts.StopGrace

	start := time.Now()
	runErr := cmd.Run()
	_ = stamp.Flush()

	code := exitCode(runErr)
	if code != 0 {
		_ = stamp.Line(joblog.FailedMarker)
		opts.report("failed")
	} else {
		opts.report("ok")
	}
	fields := []logx.Field{logx.Int("exit_code", code), logx.Duration("took", time.Since(start))}
	switch {
	case runErr == nil:
		log.Info("run finished", fields...)
	case ctx.Err() != nil:
		log.Warn("run cancelled", fields...)
	default:
		log.Warn("run failed", append(fields, logx.Err(runErr))...)
	}
	return code, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		if c := ee.ExitCode(); c > 0 {
			return c
		}
	}
	return 1
}
