//go:build linux

package crypto

import "golang.org/x/sys/unix"

// lock pins b in RAM so seed material is never swapped. Failure is not fatal:
// unprivileged processes may exceed RLIMIT_MEMLOCK.
func lock(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	return unix.Mlock(b) == nil
}

func unlock(b []byte) {
	if len(b) > 0 {
		_ = unix.Munlock(b)
	}
}
