//go:build windows

package nbrly

import (
	"os"

	"golang.org/x/sys/windows"
)

// platformSync invokes the kernel's FlushFileBuffers on a side handle, per
// spec.md §4.2 ("on Windows, open a side handle and invoke the kernel
// flush file buffers").
func platformSync(f *os.File) error {
	return windows.FlushFileBuffers(windows.Handle(f.Fd()))
}
