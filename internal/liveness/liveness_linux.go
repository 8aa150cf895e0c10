//go:build linux

package liveness

import "github.com/prometheus/procfs"

// isRunning reads /proc/<pid>/stat. A missing entry means the process is
// gone; state Z (zombie) or X (dead) means it has exited but was not reaped.
func isRunning(pid int) bool {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return false
	}
	st, err := p.Stat()
	if err != nil {
		return false
	}
	switch st.State {
	case "Z", "X", "x":
		return false
	}
	return true
}
