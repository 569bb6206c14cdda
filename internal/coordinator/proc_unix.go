//go:build unix

package coordinator

import "golang.org/x/sys/unix"

// defaultProber probes liveness with a zero signal: no signal is
// delivered, but permission and existence are checked. EPERM means the
// process exists under another user, which still counts as alive.
type defaultProber struct{}

func (defaultProber) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
