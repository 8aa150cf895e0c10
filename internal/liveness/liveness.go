// Package liveness answers whether a process id names a live, non-zombie process.
//
// Any anomaly while checking (vanished process, permission denied, unreadable
// process table entry) is reported as not running.
package liveness

// Prober reports process liveness. Implementations must be safe for
// concurrent use and free of side effects.
type Prober interface {
	IsRunning(pid int) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(pid int) bool

func (f ProberFunc) IsRunning(pid int) bool { return f(pid) }

// New returns the prober for the current OS.
func New() Prober { return osProber{} }

type osProber struct{}

func (osProber) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return isRunning(pid)
}
