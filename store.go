// Memory-Mapped List (C7) — the core of the core. store.go holds the type,
// construction/open/close, low-level index-entry codec, and the locked
// helpers shared by add.go/get.go/update.go/remove.go/iterate.go/
// defrag.go/fragmentation.go. Grounded on the teacher's db.go (the central
// struct, its RWMutex + Cond based state machine) generalized from a
// JSON-line document store to a fixed-width binary index/data pair.
package nbrly

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// indexEntry is the on-disk 28-byte tuple (id, offset, length) from §3.
type indexEntry struct {
	ID     ID
	Offset int64
	Length uint32
}

func encodeIndexEntry(e indexEntry) []byte {
	buf := make([]byte, IndexEntrySize)
	copy(buf[0:16], e.ID[:])
	binary.LittleEndian.PutUint64(buf[16:24], uint64(e.Offset))
	binary.LittleEndian.PutUint32(buf[24:28], e.Length)
	return buf
}

func decodeIndexEntry(buf []byte) indexEntry {
	var e indexEntry
	copy(e.ID[:], buf[0:16])
	e.Offset = int64(binary.LittleEndian.Uint64(buf[16:24]))
	e.Length = binary.LittleEndian.Uint32(buf[24:28])
	return e
}

// Store is the durable, concurrent, disk-backed vector store (C7). All
// public operations take either the read or write lock, never both and
// never recursively (spec.md §5); internal helpers that assume a lock is
// already held are suffixed `UnderLock` rather than re-entering a public
// method, per spec.md §9's "_under_lock" convention.
type Store struct {
	mu  sync.RWMutex
	cfg Config
	log *zap.SugaredLogger

	dir       string
	indexFile *mappedFile
	dataFile  *mappedFile
	wal       *wal
	dm        *durabilityManager

	lockFile *os.File
	lock     *storeLock
	readOnly bool

	capacity     int64 // records
	dataCapacity int64 // bytes

	count    int   // valid, non-tombstone entries
	indexEnd int   // position of the first EMPTY slot (length of the valid prefix)
	dataEnd  int64 // data cursor: max(offset+length) over valid entries

	existence *bloom

	defragIndexPos int
	defragDataPos  int64

	closed bool
}

// Paths returns the three file paths a Store uses for title, following
// spec.md §6's "{title}_{purpose}.nbrly" pattern plus the sibling ".wal".
func Paths(dir, title string) (indexPath, dataPath, walPath string) {
	title = sanitizeTitle(title)
	base := filepath.Join(dir, title)
	return base + "_index.nbrly", base + "_data.nbrly", base + "_index.nbrly.wal"
}

func lockPath(dir, title string) string {
	return filepath.Join(dir, sanitizeTitle(title)+"_index.nbrly.lock")
}

func sanitizeTitle(title string) string {
	if title == "" {
		return time.Now().UTC().Format("20060102150405")
	}
	var b strings.Builder
	for _, r := range title {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return time.Now().UTC().Format("20060102150405")
	}
	return b.String()
}

// OpenStore creates or opens a store rooted at dir with the given title.
// On open it validates index/data invariants, repairing if necessary, then
// replays any pending WAL entries (spec.md §4.7 "Corruption-aware
// startup").
func OpenStore(dir, title string, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	indexPath, dataPath, walPath := Paths(dir, title)

	lockFile, err := os.OpenFile(lockPath(dir, title), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open lock file: %w", err)
	}
	access := AccessExclusive
	if cfg.ReadOnly {
		access = AccessShared
	}
	lk := &storeLock{}
	lk.setFile(lockFile)
	if err := lk.Lock(access); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("store: acquire lock: %w", err)
	}

	indexCapacityBytes := int64(cfg.Capacity) * IndexEntrySize
	dataCapacityBytes := int64(cfg.Capacity) * int64(cfg.AverageRecordBytes)

	indexFile, err := openMappedFile(indexPath, indexCapacityBytes, Persistent)
	if err != nil {
		lk.Unlock()
		lockFile.Close()
		return nil, err
	}
	dataFile, err := openMappedFile(dataPath, dataCapacityBytes, Persistent)
	if err != nil {
		indexFile.Dispose()
		lk.Unlock()
		lockFile.Close()
		return nil, err
	}
	w, err := openWAL(walPath)
	if err != nil {
		indexFile.Dispose()
		dataFile.Dispose()
		lk.Unlock()
		lockFile.Close()
		return nil, err
	}

	s := &Store{
		cfg:          cfg,
		log:          cfg.Logger,
		dir:          dir,
		indexFile:    indexFile,
		dataFile:     dataFile,
		wal:          w,
		lockFile:     lockFile,
		lock:         lk,
		readOnly:     cfg.ReadOnly,
		capacity:     int64(cfg.Capacity),
		dataCapacity: dataCapacityBytes,
		existence:    newBloom(),
	}
	s.dm = newDurabilityManager(cfg)
	s.dm.Register(indexFile)
	s.dm.Register(dataFile)

	if cfg.Monitor != nil {
		cfg.Monitor.Register(s)
	}

	if err := s.recoverOnOpenUnderLock(); err != nil {
		indexFile.Dispose()
		dataFile.Dispose()
		w.Close()
		lk.Unlock()
		lockFile.Close()
		return nil, err
	}
	return s, nil
}

// recoverOnOpenUnderLock runs corruption detection, repair, and WAL replay.
// Called only from OpenStore, before the store is visible to any other
// goroutine, so no lock is taken here despite the name.
func (s *Store) recoverOnOpenUnderLock() error {
	if err := s.rebuildCursorsUnderLock(); err != nil {
		s.log.Warnw("store: index invalid on open, attempting repair", "error", err)
		if rerr := s.attemptRepairUnderLock(); rerr != nil {
			return fmt.Errorf("store: repair failed: %w", rerr)
		}
	}
	if err := s.replayWALUnderLock(); err != nil {
		return fmt.Errorf("store: wal replay: %w", err)
	}
	return nil
}

// Close flushes and releases all resources. Not safe to call concurrently
// with other Store methods.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.dm.Close()
	var firstErr error
	if err := s.indexFile.Dispose(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.dataFile.Dispose(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.wal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.lock.setFile(nil)
	if err := s.lockFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Count returns the number of valid, non-tombstone entries.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Flush forces the Durability Manager to flush both backing files now,
// regardless of policy.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dm.FlushAll()
	return nil
}

// ReleaseMappedMemory disposes the current mapped views, letting the OS
// reclaim resident pages; the next access transparently recreates them
// (spec.md §5: memory-pressure intervention).
func (s *Store) ReleaseMappedMemory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.indexFile.ReleaseView(); err != nil {
		return err
	}
	return s.dataFile.ReleaseView()
}

// checkWritableUnderLock rejects mutation on a store opened with
// Config.ReadOnly, which holds only a shared cross-process lock and must
// not write to files other readers may also be mapping.
func (s *Store) checkWritableUnderLock() error {
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}

// Clear empties the store: resets cursors, count, and the existence
// filter, and truncates the WAL. Does not resize backing files.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritableUnderLock(); err != nil {
		return err
	}

	empty := encodeIndexEntry(indexEntry{ID: Empty})
	if _, err := s.indexFile.WriteAt(empty, 0); err != nil {
		return err
	}
	s.count = 0
	s.indexEnd = 0
	s.dataEnd = 0
	s.defragIndexPos = 0
	s.defragDataPos = 0
	s.existence.Reset()
	return s.wal.Truncate()
}

// readIndexEntryUnderLock reads the entry at physical slot i.
func (s *Store) readIndexEntryUnderLock(i int) (indexEntry, error) {
	buf := make([]byte, IndexEntrySize)
	if _, err := s.indexFile.ReadAt(buf, int64(i)*IndexEntrySize); err != nil {
		return indexEntry{}, err
	}
	return decodeIndexEntry(buf), nil
}

// writeIndexEntryUnderLock writes e at physical slot i.
func (s *Store) writeIndexEntryUnderLock(i int, e indexEntry) error {
	_, err := s.indexFile.WriteAt(encodeIndexEntry(e), int64(i)*IndexEntrySize)
	return err
}

// writeIndexIDUnderLock patches only the 16-byte identifier field of slot
// i, leaving offset/length untouched — used by Remove, which the spec
// describes as "only the identifier bytes are rewritten in the file".
func (s *Store) writeIndexIDUnderLock(i int, id ID) error {
	_, err := s.indexFile.WriteAt(id[:], int64(i)*IndexEntrySize)
	return err
}

// rebuildCursorsUnderLock performs the "end-of-stream discovery" walk
// (spec.md §4.7): scans index entries in order, tracking the maximum
// offset+length seen among non-EMPTY entries, the count of non-tombstone
// entries, and the position of the first EMPTY entry. It also validates
// that every entry references a region inside the data file's capacity,
// returning ErrCorrupt if not (the trigger for attemptRepairUnderLock).
func (s *Store) rebuildCursorsUnderLock() error {
	s.existence.Reset()
	var count int
	var dataEnd int64
	i := 0
	for ; int64(i)*IndexEntrySize+IndexEntrySize <= int64(s.capacity)*IndexEntrySize; i++ {
		e, err := s.readIndexEntryUnderLock(i)
		if err != nil {
			return err
		}
		if e.ID.IsEmpty() {
			break
		}
		end := e.Offset + int64(e.Length)
		if e.Offset < 0 || e.Length == 0 || end > s.dataCapacity {
			return fmt.Errorf("store: entry %d: %w", i, ErrCorrupt)
		}
		if end > dataEnd {
			dataEnd = end
		}
		if !e.ID.IsTombstone() {
			count++
			s.existence.Add(e.ID)
		}
	}
	s.indexEnd = i
	s.count = count
	s.dataEnd = dataEnd
	return nil
}
