// Memory-mapped backing files (C1).
//
// mappedFile owns one sparse, memory-mapped file plus a view into it.
// Lifecycle is explicit and scoped (create/open/reset/dispose) rather than
// finalizer-driven — the neutral strategy spec.md §9 calls for in place of
// the source's pointer-typed holder with finalizer cleanup. release_view
// drops the mapping without deleting the file, letting the OS page it out;
// reset recreates the mapping on the same file. Platform-specific mmap and
// msync calls live in mfile_unix.go / mfile_windows.go, mirroring the
// teacher's lock_unix.go / lock_windows.go split.
package nbrly

import (
	"fmt"
	"os"
	"sync"
)

// FileMode selects whether a mapped file's backing file is removed on
// Dispose.
type FileMode int

const (
	// Persistent backing files survive Dispose.
	Persistent FileMode = iota
	// Temporary backing files are removed on Dispose.
	Temporary
)

// mappedFile owns a single memory-mapped backing file. All access outside
// this package goes through Store, never through the raw mapping — per
// spec.md §9's "never expose the raw handle" guidance for the reader-
// writer-guarded cursor pattern.
type mappedFile struct {
	mu       sync.RWMutex
	path     string
	mode     FileMode
	file     *os.File
	data     []byte
	capacity int64

	// sys holds platform-specific mapping state (on Windows, the
	// CreateFileMapping handle and MapViewOfFile address) alongside data
	// rather than in a package-level table, so it's covered by mf.mu like
	// everything else instead of needing its own synchronization. Unused
	// on Unix, where mmap/munmap need no side state beyond data itself.
	sys any
}

// openMappedFile creates or opens path, sizes it (sparsely, where the
// platform supports it) to capacityBytes, and maps it into memory.
func openMappedFile(path string, capacityBytes int64, mode FileMode) (*mappedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mfile: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mfile: stat %s: %w", path, err)
	}
	if info.Size() < capacityBytes {
		// Truncate (not write) to grow the file — this is what makes the
		// new region sparse on platforms that support sparse files
		// (ext4, APFS, NTFS): no blocks are allocated until written.
		if err := f.Truncate(capacityBytes); err != nil {
			f.Close()
			return nil, fmt.Errorf("mfile: truncate %s: %w", path, err)
		}
	}

	mf := &mappedFile{path: path, mode: mode, file: f, capacity: capacityBytes}
	if err := mf.mapLocked(); err != nil {
		f.Close()
		return nil, err
	}
	return mf, nil
}

// Filename returns the backing file's path.
func (mf *mappedFile) Filename() string { return mf.path }

// Capacity returns the mapped file's logical capacity in bytes.
func (mf *mappedFile) Capacity() int64 { return mf.capacity }

// ReadAt copies len(p) bytes starting at off from the mapping into p.
func (mf *mappedFile) ReadAt(p []byte, off int64) (int, error) {
	mf.mu.RLock()
	if mf.data == nil {
		// Remapping mutates mf.data, so it cannot happen under a shared
		// RLock — two concurrent readers here would both see data == nil
		// and both remap, racing on the field (and leaking one mapping).
		// Release the read lock, remap under the exclusive lock, then
		// re-acquire the read lock to serve the read as normal.
		mf.mu.RUnlock()
		mf.mu.Lock()
		var err error
		if mf.data == nil {
			err = mf.mapLocked()
		}
		mf.mu.Unlock()
		if err != nil {
			return 0, err
		}
		mf.mu.RLock()
	}
	defer mf.mu.RUnlock()
	if off < 0 || off+int64(len(p)) > int64(len(mf.data)) {
		return 0, fmt.Errorf("mfile: %s: %w", mf.path, ErrOutOfBounds)
	}
	return copy(p, mf.data[off:off+int64(len(p))]), nil
}

// WriteAt copies p into the mapping starting at off.
func (mf *mappedFile) WriteAt(p []byte, off int64) (int, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.data == nil {
		if err := mf.remapLocked(); err != nil {
			return 0, err
		}
	}
	if off < 0 || off+int64(len(p)) > int64(len(mf.data)) {
		return 0, fmt.Errorf("mfile: %s: %w", mf.path, ErrOutOfBounds)
	}
	return copy(mf.data[off:off+int64(len(p))], p), nil
}

// remapLocked recreates the mapping after ReleaseView. Caller must already
// hold mf.mu for writing; WriteAt always does. ReadAt instead promotes its
// read lock to a write lock itself before remapping (see ReadAt).
func (mf *mappedFile) remapLocked() error {
	return mf.mapLocked()
}

// Reset recreates the view on the same backing file, following a prior
// ReleaseView.
func (mf *mappedFile) Reset() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.data != nil {
		return nil
	}
	return mf.mapLocked()
}

// FlushView flushes dirty mapped pages to the backing file without a full
// platform fsync (msync / FlushViewOfFile). The Durability Manager follows
// this with a platform sync of a side descriptor (durability.go).
func (mf *mappedFile) FlushView() error {
	mf.mu.RLock()
	defer mf.mu.RUnlock()
	if mf.data == nil {
		return nil
	}
	return mf.msyncLocked()
}

// ReleaseView disposes the mapping without deleting the backing file,
// allowing the OS to reclaim resident pages. The next access transparently
// recreates the mapping via Reset or the first ReadAt/WriteAt.
func (mf *mappedFile) ReleaseView() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	return mf.unmapLocked()
}

// Dispose releases the view and closes the backing file. If the holder was
// created Temporary, the backing file is also removed.
func (mf *mappedFile) Dispose() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	if err := mf.unmapLocked(); err != nil {
		return err
	}
	path := mf.path
	f := mf.file
	mf.file = nil
	if f != nil {
		if err := f.Close(); err != nil {
			return fmt.Errorf("mfile: close %s: %w", path, err)
		}
	}
	if mf.mode == Temporary {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("mfile: remove %s: %w", path, err)
		}
	}
	return nil
}
