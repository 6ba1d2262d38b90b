//go:build unix || linux || darwin

// flock(2) backend for storeLock on Unix platforms. Both methods are
// called with l.mu already held by the exported Lock/Unlock.
package nbrly

import "syscall"

func (l *storeLock) lock(access storeAccess) error {
	op := syscall.LOCK_SH
	if access == AccessExclusive {
		op = syscall.LOCK_EX
	}
	// Blocking flock — no LOCK_NB, so a second process simply waits its
	// turn rather than erroring out of OpenStore.
	return syscall.Flock(int(l.f.Fd()), op)
}

func (l *storeLock) unlock() error {
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}
