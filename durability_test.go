package nbrly

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func openTestMappedFile(t *testing.T, name string) *mappedFile {
	t.Helper()
	mf, err := openMappedFile(filepath.Join(t.TempDir(), name), 4096, Persistent)
	if err != nil {
		t.Fatalf("open_mapped_file: %v", err)
	}
	t.Cleanup(func() { mf.Dispose() })
	return mf
}

func TestDurabilityManagerFlushImmediate(t *testing.T) {
	cfg := Config{FlushPolicy: FlushImmediate, Logger: zap.NewNop().Sugar()}.withDefaults()
	dm := newDurabilityManager(cfg)
	defer dm.Close()

	mf := openTestMappedFile(t, "immediate.dat")
	dm.Register(mf)

	if _, err := mf.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("write_at: %v", err)
	}
	dm.RecordOp() // FlushImmediate flushes on every op, synchronously.

	var buf [5]byte
	if _, err := mf.ReadAt(buf[:], 0); err != nil {
		t.Fatalf("read_at: %v", err)
	}
	if string(buf[:]) != "hello" {
		t.Fatalf("read back %q, want %q", buf, "hello")
	}
}

func TestDurabilityManagerFlushBatched(t *testing.T) {
	cfg := Config{FlushPolicy: FlushBatched, BatchSize: 3, Logger: zap.NewNop().Sugar()}.withDefaults()
	dm := newDurabilityManager(cfg)
	defer dm.Close()

	mf := openTestMappedFile(t, "batched.dat")
	dm.Register(mf)

	dm.RecordOp()
	dm.RecordOp()
	dm.mu.Lock()
	opsBeforeFlush := dm.ops
	dm.mu.Unlock()
	if opsBeforeFlush != 2 {
		t.Fatalf("ops = %d, want 2 before the batch threshold", opsBeforeFlush)
	}

	dm.RecordOp() // crosses BatchSize, triggers a flush that resets ops.
	dm.mu.Lock()
	opsAfterFlush := dm.ops
	dm.mu.Unlock()
	if opsAfterFlush != 0 {
		t.Fatalf("ops = %d, want 0 after the batch flush", opsAfterFlush)
	}
}

func TestDurabilityManagerFlushTimer(t *testing.T) {
	cfg := Config{FlushPolicy: FlushTimer, TimerInterval: 10 * time.Millisecond, Logger: zap.NewNop().Sugar()}.withDefaults()
	dm := newDurabilityManager(cfg)
	defer dm.Close()

	mf := openTestMappedFile(t, "timer.dat")
	dm.Register(mf)
	dm.RecordOp() // marks dirty; the timer goroutine should pick it up.

	deadline := time.After(time.Second)
	for {
		dm.mu.Lock()
		dirty := dm.dirty
		dm.mu.Unlock()
		if !dirty {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected the flush timer to clear the dirty flag")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDurabilityManagerReplaceSwapsRegisteredFile(t *testing.T) {
	cfg := Config{FlushPolicy: FlushNone, Logger: zap.NewNop().Sugar()}.withDefaults()
	dm := newDurabilityManager(cfg)
	defer dm.Close()

	oldFile := openTestMappedFile(t, "old.dat")
	dm.Register(oldFile)

	freshFile := openTestMappedFile(t, "fresh.dat")
	dm.Replace(oldFile, freshFile)

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if len(dm.files) != 1 || dm.files[0] != freshFile {
		t.Fatalf("expected the registered set to contain only the replacement, got %v", dm.files)
	}
}

func TestDurabilityManagerCloseForcesFinalFlush(t *testing.T) {
	cfg := Config{FlushPolicy: FlushNone, Logger: zap.NewNop().Sugar()}.withDefaults()
	dm := newDurabilityManager(cfg)

	mf := openTestMappedFile(t, "close.dat")
	dm.Register(mf)
	dm.RecordOp()

	dm.mu.Lock()
	dirtyBeforeClose := dm.dirty
	dm.mu.Unlock()
	if !dirtyBeforeClose {
		t.Fatal("expected RecordOp under FlushNone to mark dirty without flushing")
	}

	dm.Close()

	dm.mu.Lock()
	dirtyAfterClose := dm.dirty
	dm.mu.Unlock()
	if dirtyAfterClose {
		t.Fatal("expected Close's final forced flush to clear dirty")
	}
}
