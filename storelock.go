// Cross-process store coordination: a Store's RWMutex only serializes
// goroutines inside one process, so a second process opening the same
// title would otherwise be free to map the same index/data files and
// corrupt them. storeLock wraps flock(2)/LockFileEx over the store's
// "_index.nbrly.lock" sibling file to close that gap, and encodes this
// package's read/write sharing policy directly in its two access levels:
//
//   - AccessExclusive: the default. A single writer process holds the
//     lock for the store's entire lifetime; every other process's
//     OpenStore blocks until it closes.
//   - AccessShared: Config.ReadOnly opens a store this way. Any number of
//     read-only processes may hold the lock concurrently, but a process
//     that also wants AccessExclusive still blocks behind them — giving
//     "many readers, at most one writer" across the whole machine, not
//     just within one process (spec.md §5's in-process RWMutex, extended
//     to the process boundary).
//
// The mutex guards the file handle's lifetime: it is held for the
// duration of the flock syscall so that Fd() cannot race with Close() on
// the same *os.File. setFile(nil) drains any in-flight flock and turns
// Lock/Unlock into no-ops, used by Store.Close before the fd is closed.
package nbrly

import (
	"os"
	"sync"
)

// storeAccess selects how a storeLock shares the underlying file across
// processes.
type storeAccess int

const (
	// AccessExclusive admits a single holder, reader or writer.
	AccessExclusive storeAccess = iota
	// AccessShared admits any number of concurrent read-only holders.
	AccessShared
)

// storeLock coordinates one store's cross-process lock file with safe
// handle teardown.
type storeLock struct {
	mu sync.Mutex
	f  *os.File
}

// Lock blocks until access is granted at the given level. Returns nil
// immediately if the handle has been cleared via setFile(nil).
func (l *storeLock) Lock(access storeAccess) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.lock(access)
}

// Unlock releases the lock. Returns nil immediately if the handle has
// been cleared via setFile(nil).
func (l *storeLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.unlock()
}

// setFile swaps the underlying file handle. Passing nil drains any
// in-flight flock (blocks until the mutex is available) and disables
// further locking. Used by Store.Close before closing the fd.
func (l *storeLock) setFile(f *os.File) {
	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
}
