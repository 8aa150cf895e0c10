// Package joblog owns the per-job output logs written by launched and
// scheduled runs.
package joblog

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// NoLogYet is returned by Load when the job has not produced output.
const NoLogYet = "No log yet"

// FailedMarker is appended to a log when the job command exits non-zero.
const FailedMarker = "Failed"

type Status string

const (
	StatusNoLog   Status = "no_log"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("joblog: empty log dir")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("joblog: resolve %q: %w", root, err)
	}
	return &Dir{root: abs}, nil
}

func (d *Dir) Root() string { return d.root }

// Path maps a job name to its log file. Whitespace is dropped so the name
// can be used unquoted in a crontab line.
func (d *Dir) Path(name string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '/' || r == '\\' {
			return -1
		}
		return r
	}, name)
	if clean == "" || clean == "." || clean == ".." {
		clean = "_"
	}
	return filepath.Join(d.root, clean+".log")
}

// Load returns the full log or NoLogYet when none exists.
func (d *Dir) Load(name string) (string, error) {
	raw, err := os.ReadFile(d.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return NoLogYet, nil
	}
	if err != nil {
		return "", fmt.Errorf("joblog: read: %w", err)
	}
	return string(raw), nil
}

// Clear truncates the log, creating the directory and file if needed.
func (d *Dir) Clear(name string) error {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("joblog: create dir: %w", err)
	}
	if err := os.WriteFile(d.Path(name), nil, 0o644); err != nil {
		return fmt.Errorf("joblog: clear: %w", err)
	}
	return nil
}

func (d *Dir) Delete(name string) error {
	if err := os.Remove(d.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("joblog: delete: %w", err)
	}
	return nil
}

// Status derives the outcome of the last run from the log tail.
func (d *Dir) Status(name string) (Status, error) {
	raw, err := os.ReadFile(d.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return StatusNoLog, nil
	}
	if err != nil {
		return "", fmt.Errorf("joblog: read: %w", err)
	}
	return statusOf(raw), nil
}

func statusOf(raw []byte) Status {
	fields := bytes.Fields(raw)
	if len(fields) == 0 {
		return StatusNoLog
	}
	if string(fields[len(fields)-1]) == FailedMarker {
		return StatusFailed
	}
	return StatusSuccess
}

// OpenAppend opens the log for appending, creating the directory.
func (d *Dir) OpenAppend(name string) (*os.File, error) {
	return OpenAppend(d.Path(name))
}

func OpenAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("joblog: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("joblog: open: %w", err)
	}
	return f, nil
}
