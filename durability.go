// Durability Manager (C2): flushes registered mapped files per a policy
// and issues a platform-specific fsync via a side descriptor. Grounded on
// the teacher's platform-split lock pattern (lock.go/lock_unix.go/
// lock_windows.go); platform sync primitives live in sync_unix.go /
// sync_windows.go.
package nbrly

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// durabilityManager tracks registered mapped files and the flush policy
// governing them.
type durabilityManager struct {
	mu       sync.Mutex
	policy   FlushPolicy
	batch    int
	interval time.Duration
	log      *zap.SugaredLogger

	files []*mappedFile
	ops   int
	dirty bool

	stopTimer chan struct{}
	timerDone chan struct{}
}

func newDurabilityManager(cfg Config) *durabilityManager {
	dm := &durabilityManager{
		policy:   cfg.FlushPolicy,
		batch:    cfg.BatchSize,
		interval: cfg.TimerInterval,
		log:      cfg.Logger,
	}
	if dm.policy == FlushTimer {
		dm.stopTimer = make(chan struct{})
		dm.timerDone = make(chan struct{})
		go dm.runTimer()
	}
	return dm
}

// Register adds mf to the set of files this manager flushes.
func (dm *durabilityManager) Register(mf *mappedFile) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.files = append(dm.files, mf)
}

// Replace swaps old for fresh in the registered set, used after
// AttemptRepair recreates a mapped file under a new handle.
func (dm *durabilityManager) Replace(old, fresh *mappedFile) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for i, f := range dm.files {
		if f == old {
			dm.files[i] = fresh
			return
		}
	}
	dm.files = append(dm.files, fresh)
}

// RecordOp notes that one mutating operation occurred, flushing
// immediately or every Nth operation per policy.
func (dm *durabilityManager) RecordOp() {
	dm.mu.Lock()
	dm.dirty = true
	dm.ops++
	policy, ops, batch := dm.policy, dm.ops, dm.batch
	dm.mu.Unlock()

	switch policy {
	case FlushImmediate:
		dm.FlushAll()
	case FlushBatched:
		if ops%batch == 0 {
			dm.FlushAll()
		}
	}
}

// FlushAll flushes every registered file's view and issues a platform
// sync. A single file's failure is logged and does not prevent the
// remaining files from being flushed (spec.md §4.2, §7).
func (dm *durabilityManager) FlushAll() {
	dm.mu.Lock()
	files := append([]*mappedFile(nil), dm.files...)
	dm.ops = 0
	dm.dirty = false
	dm.mu.Unlock()

	for _, mf := range files {
		if err := dm.flushOne(mf); err != nil {
			dm.log.Warnw("durability: flush failed", "file", mf.Filename(), "error", err)
		}
	}
}

func (dm *durabilityManager) flushOne(mf *mappedFile) error {
	if err := mf.FlushView(); err != nil {
		return err
	}
	f, err := os.Open(mf.Filename())
	if err != nil {
		return fmt.Errorf("durability: open side descriptor for %s: %w", mf.Filename(), err)
	}
	defer f.Close()
	return platformSync(f)
}

func (dm *durabilityManager) runTimer() {
	defer close(dm.timerDone)
	ticker := time.NewTicker(dm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-dm.stopTimer:
			return
		case <-ticker.C:
			dm.mu.Lock()
			dirty := dm.dirty
			dm.mu.Unlock()
			if dirty {
				dm.FlushAll()
			}
		}
	}
}

// Close performs a final forced flush and stops the timer goroutine, if
// any (spec.md §4.2: "Final forced flush on dispose").
func (dm *durabilityManager) Close() {
	if dm.stopTimer != nil {
		close(dm.stopTimer)
		<-dm.timerDone
	}
	dm.FlushAll()
}
