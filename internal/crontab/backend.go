package crontab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Backend reads and replaces the whole crontab.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// CommandBackend drives crontab(1) for the current or a named user.
type CommandBackend struct {
	Bin  string
	User string
}

func (b CommandBackend) args(extra ...string) []string {
	var a []string
	if b.User != "" {
		a = append(a, "-u", b.User)
	}
	return append(a, extra...)
}

func (b CommandBackend) bin() string {
	if b.Bin == "" {
		return "crontab"
	}
	return b.Bin
}

func (b CommandBackend) Read(ctx context.Context) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.bin(), b.args("-l")...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(strings.ToLower(stderr.String()), "no crontab for") {
			return nil, nil
		}
		return nil, fmt.Errorf("crontab: list: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (b CommandBackend) Write(ctx context.Context, data []byte) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.bin(), b.args("-")...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("crontab: install: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// FileBackend keeps the table in a plain file, replaced atomically.
type FileBackend struct {
	Path string
}

func (b FileBackend) Read(_ context.Context) ([]byte, error) {
	raw, err := os.ReadFile(b.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crontab: read %s: %w", b.Path, err)
	}
	return raw, nil
}

func (b FileBackend) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("crontab: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("crontab: write: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("crontab: write: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("crontab: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("crontab: write: %w", err)
	}
	if err := os.Rename(tmpName, b.Path); err != nil {
		return fmt.Errorf("crontab: write: %w", err)
	}
	return nil
}
