package nbrly

import (
	"path/filepath"
	"testing"
)

func TestWALLogCommitReadEntries(t *testing.T) {
	dir := t.TempDir()
	w, err := openWAL(filepath.Join(dir, "test.wal"))
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	defer w.Close()

	id := NewID()
	entry := WALEntry{Kind: WALAdd, ID: id, IndexPos: 3, DataPos: 100, Payload: []byte("payload-bytes")}

	offset, err := w.Log(entry)
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	// A logged-but-not-yet-committed entry is exactly what a crash-between-
	// log-and-write scenario leaves pending replay.
	entries, err := w.ReadEntries()
	if err != nil {
		t.Fatalf("read_entries (uncommitted): %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 pending entry before commit, got %d", len(entries))
	}
	if entries[0].ID != id || string(entries[0].Payload) != "payload-bytes" {
		t.Fatalf("entry mismatch: %+v", entries[0])
	}

	if err := w.Commit(offset, FrameLen(len(entry.Payload))); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Once committed, the entry is considered durably applied and no
	// longer needs replay.
	entries, err = w.ReadEntries()
	if err != nil {
		t.Fatalf("read_entries (committed): %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 pending entries after commit, got %d", len(entries))
	}
}

func TestWALTruncate(t *testing.T) {
	dir := t.TempDir()
	w, err := openWAL(filepath.Join(dir, "test.wal"))
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	defer w.Close()

	offset, err := w.Log(WALEntry{Kind: WALRemove, ID: NewID(), IndexPos: 0})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := w.Commit(offset, FrameLen(0)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	entries, err := w.ReadEntries()
	if err != nil {
		t.Fatalf("read_entries after truncate: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries after truncate, got %d", len(entries))
	}
}

func TestWALTruncatedTrailingFrameTolerated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")
	w, err := openWAL(path)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}

	// First frame: logged but never committed — simulates a crash between
	// log() and the main store write completing; it must survive as a
	// pending entry.
	id := NewID()
	payload := []byte("some record bytes")
	if _, err := w.Log(WALEntry{Kind: WALAdd, ID: id, IndexPos: 0, DataPos: 0, Payload: payload}); err != nil {
		t.Fatalf("log first: %v", err)
	}

	// Second frame: crash mid-append, leaving a truncated trailing frame.
	if _, err := w.Log(WALEntry{Kind: WALAdd, ID: NewID(), IndexPos: 1, DataPos: 100, Payload: make([]byte, 50)}); err != nil {
		t.Fatalf("log second: %v", err)
	}
	info, err := w.file.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := w.file.Truncate(info.Size() - 10); err != nil {
		t.Fatalf("truncate partial: %v", err)
	}

	entries, err := w.ReadEntries()
	if err != nil {
		t.Fatalf("read_entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the first complete pending entry, got %d", len(entries))
	}
	if entries[0].ID != id {
		t.Fatalf("unexpected surviving entry: %+v", entries[0])
	}
	w.Close()
}
