// Write-Ahead Log (C3): append-only log of pending mutations, replayable
// after a crash. Grounded on the teacher's append-then-patch-a-fixed-byte
// idiom (header.go's dirty(w,v), write.go's raw()) and on
// other_examples/...vector_storage.go's WAL-before-ingest / idempotent-
// replay shape for a vector engine.
//
// Frame layout (little-endian):
//
//	kind(1) || id(16) || index_pos(8) || data_pos(8) || payload_len(4) ||
//	payload || checksum(8) || committed(1)
//
// log() appends a frame with committed=0. commit() patches the single
// committed byte of that frame in place — cheaper than an fsync-heavy
// truncate-per-commit, and the WAL file itself is truncated to empty
// lazily, only after a fully successful replay on the next Open (the
// Open Question decision recorded in SPEC_FULL.md §4 C3).
package nbrly

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// WALEntryKind identifies the kind of mutation a WAL frame describes.
type WALEntryKind byte

const (
	WALAdd WALEntryKind = iota + 1
	WALUpdate
	WALRemove
)

// WALEntry is one framed, pending mutation.
type WALEntry struct {
	Kind     WALEntryKind
	ID       ID
	IndexPos int64
	DataPos  int64
	Payload  []byte // encoded record bytes for Add/Update; tombstone marker bytes for Remove
}

const walFrameFixed = 1 + 16 + 8 + 8 + 4 // kind,id,indexPos,dataPos,payloadLen
const walFrameTrailer = walChecksumSize + 1
const walCommittedOffsetFromEnd = 1 // committed byte is the very last byte of a frame

// wal wraps the sibling .wal file named after the index file, per
// spec.md §6 ("sibling WAL file has suffix .wal").
type wal struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func openWAL(path string) (*wal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &wal{path: path, file: f}, nil
}

// encodeFrame serializes e with committed=0.
func encodeFrame(e WALEntry) []byte {
	buf := make([]byte, walFrameFixed+len(e.Payload)+walFrameTrailer)
	off := 0
	buf[off] = byte(e.Kind)
	off++
	copy(buf[off:], e.ID[:])
	off += 16
	binary.LittleEndian.PutUint64(buf[off:], uint64(e.IndexPos))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(e.DataPos))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(e.Payload)))
	off += 4
	copy(buf[off:], e.Payload)
	off += len(e.Payload)

	sum := walChecksum(buf[:off])
	binary.LittleEndian.PutUint64(buf[off:], sum)
	off += walChecksumSize
	buf[off] = 0 // committed
	return buf
}

// Log appends entry e, uncommitted, and returns the frame's starting
// offset for a later Commit call.
func (w *wal) Log(e WALEntry) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	frame := encodeFrame(e)
	info, err := w.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("wal: stat %s: %w", w.path, err)
	}
	offset := info.Size()
	if _, err := w.file.WriteAt(frame, offset); err != nil {
		return 0, fmt.Errorf("wal: append %s: %w", w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("wal: sync %s: %w", w.path, err)
	}
	return offset, nil
}

// Commit marks the frame at offset as committed by patching its trailing
// byte in place.
func (w *wal) Commit(offset int64, frameLen int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	committedOffset := offset + int64(frameLen) - walCommittedOffsetFromEnd
	if _, err := w.file.WriteAt([]byte{1}, committedOffset); err != nil {
		return fmt.Errorf("wal: commit %s: %w", w.path, err)
	}
	return w.file.Sync()
}

// FrameLen returns the on-disk length of the frame that would be produced
// for an entry carrying the given payload length, so callers can locate
// the committed byte to patch after Log.
func FrameLen(payloadLen int) int {
	return walFrameFixed + payloadLen + walFrameTrailer
}

// ReadEntries returns every uncommitted, checksum-valid entry in file
// order (spec.md §4.3: "returns ordered list of uncommitted entries at
// startup"). A frame whose checksum fails to verify is skipped silently
// rather than aborting the scan — partial recovery is preferred to
// aborting startup (spec.md §7).
func (w *wal) ReadEntries() ([]WALEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := w.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("wal: stat %s: %w", w.path, err)
	}
	data := make([]byte, info.Size())
	if _, err := w.file.ReadAt(data, 0); err != nil && info.Size() > 0 {
		return nil, fmt.Errorf("wal: read %s: %w", w.path, err)
	}

	var entries []WALEntry
	off := 0
	for off+walFrameFixed <= len(data) {
		kind := WALEntryKind(data[off])
		var id ID
		copy(id[:], data[off+1:off+17])
		indexPos := int64(binary.LittleEndian.Uint64(data[off+17:]))
		dataPos := int64(binary.LittleEndian.Uint64(data[off+25:]))
		payloadLen := int(binary.LittleEndian.Uint32(data[off+33:]))
		frameLen := walFrameFixed + payloadLen + walFrameTrailer
		if payloadLen < 0 || off+frameLen > len(data) {
			break // truncated trailing frame — tolerate, stop scanning
		}
		payload := data[off+walFrameFixed : off+walFrameFixed+payloadLen]
		checksumOff := off + walFrameFixed + payloadLen
		wantSum := binary.LittleEndian.Uint64(data[checksumOff:])
		committed := data[checksumOff+walChecksumSize]

		if walChecksum(data[off:checksumOff]) == wantSum && committed == 0 {
			payloadCopy := append([]byte(nil), payload...)
			entries = append(entries, WALEntry{Kind: kind, ID: id, IndexPos: indexPos, DataPos: dataPos, Payload: payloadCopy})
		}
		off += frameLen
	}
	return entries, nil
}

// Truncate empties the WAL file. Called after a fully successful replay.
func (w *wal) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("wal: truncate %s: %w", w.path, err)
	}
	_, err := w.file.Seek(0, 0)
	if err != nil {
		return fmt.Errorf("wal: seek %s: %w", w.path, err)
	}
	return w.file.Sync()
}

func (w *wal) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
