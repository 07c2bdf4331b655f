//go:build unix

package pidfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Alive probes pid with signal 0. EPERM means the process exists but belongs
// to another user.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func terminate(pid int) error {
	err := unix.Kill(pid, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
