//go:build unix || linux || darwin

// mmap/munmap/msync for Unix platforms via golang.org/x/sys/unix, the
// idiomatic replacement for the teacher's raw syscall package (lock_unix.go)
// when the needed call — mmap — isn't exposed by the standard syscall
// package on all targets.
package nbrly

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func (mf *mappedFile) mapLocked() error {
	data, err := unix.Mmap(int(mf.file.Fd()), 0, int(mf.capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mfile: mmap %s: %w", mf.path, err)
	}
	mf.data = data
	return nil
}

func (mf *mappedFile) unmapLocked() error {
	if mf.data == nil {
		return nil
	}
	data := mf.data
	mf.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("mfile: munmap %s: %w", mf.path, err)
	}
	return nil
}

func (mf *mappedFile) msyncLocked() error {
	if err := unix.Msync(mf.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("mfile: msync %s: %w", mf.path, err)
	}
	return nil
}
