//go:build windows

// CreateFileMapping/MapViewOfFile for Windows, via golang.org/x/sys/windows,
// mirroring the teacher's lock_windows.go split for platform-specific calls
// not covered by the portable syscall package.
package nbrly

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsMapping is stashed in mappedFile.sys rather than a package-level
// table keyed by pointer — the latter needs its own lock and was racing
// with the very mf.mu that should already cover it (two different
// mappedFiles, or two stores, mapping concurrently from different
// goroutines).
type windowsMapping struct {
	handle windows.Handle
	addr   uintptr
}

func (mf *mappedFile) mapLocked() error {
	sizeHi := uint32(mf.capacity >> 32)
	sizeLo := uint32(mf.capacity & 0xFFFFFFFF)

	h, err := windows.CreateFileMapping(windows.Handle(mf.file.Fd()), nil, windows.PAGE_READWRITE, sizeHi, sizeLo, nil)
	if err != nil {
		return fmt.Errorf("mfile: CreateFileMapping %s: %w", mf.path, err)
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(mf.capacity))
	if err != nil {
		windows.CloseHandle(h)
		return fmt.Errorf("mfile: MapViewOfFile %s: %w", mf.path, err)
	}

	mf.sys = &windowsMapping{handle: h, addr: addr}
	mf.data = unsafe.Slice((*byte)(unsafe.Pointer(addr)), mf.capacity)
	return nil
}

func (mf *mappedFile) unmapLocked() error {
	if mf.data == nil {
		return nil
	}
	m, ok := mf.sys.(*windowsMapping)
	mf.data = nil
	mf.sys = nil
	if !ok {
		return nil
	}
	if err := windows.UnmapViewOfFile(m.addr); err != nil {
		return fmt.Errorf("mfile: UnmapViewOfFile %s: %w", mf.path, err)
	}
	if err := windows.CloseHandle(m.handle); err != nil {
		return fmt.Errorf("mfile: CloseHandle %s: %w", mf.path, err)
	}
	return nil
}

func (mf *mappedFile) msyncLocked() error {
	m, ok := mf.sys.(*windowsMapping)
	if !ok {
		return nil
	}
	if err := windows.FlushViewOfFile(m.addr, uintptr(len(mf.data))); err != nil {
		return fmt.Errorf("mfile: FlushViewOfFile %s: %w", mf.path, err)
	}
	return nil
}
