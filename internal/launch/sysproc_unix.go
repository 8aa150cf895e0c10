//go:build unix

package launch

import "syscall"

// detachAttr starts the child in a new session so a hangup or signal aimed
// at our process group does not reach it.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
