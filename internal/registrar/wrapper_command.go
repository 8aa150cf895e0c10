package registrar

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// WrapperCommand describes how a crontab entry calls back into cronlock.
type WrapperCommand struct {
	Executable string
	LockDir    string
	Atomic     bool
	Shell      string
}

// ExecutablePath resolves the running binary; it is the default target for
// crontab entries.
func ExecutablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

// Action renders the command cron will run for one job.
func (w WrapperCommand) Action(jobID, logPath, command string) (string, error) {
	if strings.TrimSpace(w.Executable) == "" {
		return "", errors.New("registrar: wrapper executable not set")
	}
	if strings.ContainsAny(command, "\n\r") {
		return "", errors.New("registrar: command must be a single line to be scheduled")
	}
	parts := []string{
		quote(w.Executable), "wrap",
		"--job-id", quote(jobID),
		"--log-file", quote(logPath),
	}
	if w.LockDir != "" {
		parts = append(parts, "--lock-dir", quote(w.LockDir))
	}
	if w.Atomic {
		parts = append(parts, "--atomic")
	}
	if w.Shell != "" {
		parts = append(parts, "--shell", quote(w.Shell))
	}
	parts = append(parts, "--", quote(command))
	return strings.Join(parts, " "), nil
}

func quote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@+,", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
