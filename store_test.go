package nbrly

import (
	"errors"
	"testing"
)

func testConfig() Config {
	return Config{Capacity: 64, AverageRecordBytes: 256}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := OpenStore(dir, "test", testConfig())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAddGet(t *testing.T) {
	s := openTestStore(t)

	rec := Record{ID: NewID(), Values: []float32{1, 2, 3}, OriginalText: "a"}
	if err := s.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, ok, err := s.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get_by_id: %v", err)
	}
	if !ok {
		t.Fatal("expected record to be found")
	}
	if !got.Equal(rec) {
		t.Fatalf("got %+v, want %+v", got, rec)
	}

	if s.Count() != 1 {
		t.Fatalf("count = %d, want 1", s.Count())
	}
}

func TestStoreUpdateInPlace(t *testing.T) {
	s := openTestStore(t)

	rec := Record{ID: NewID(), Values: []float32{1, 2, 3}, OriginalText: "abc"}
	if err := s.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}

	rec.OriginalText = "abd" // same length, fits in place
	ok, err := s.Update(rec)
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}

	got, found, err := s.GetByID(rec.ID)
	if err != nil || !found {
		t.Fatalf("get_by_id after update: found=%v err=%v", found, err)
	}
	if got.OriginalText != "abd" {
		t.Fatalf("text = %q, want %q", got.OriginalText, "abd")
	}
}

func TestStoreUpdateGrows(t *testing.T) {
	s := openTestStore(t)

	rec := Record{ID: NewID(), Values: []float32{1}, OriginalText: "x"}
	if err := s.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	beforeEnd := s.dataEnd

	rec.OriginalText = "this text is considerably longer than the original one"
	ok, err := s.Update(rec)
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	if s.dataEnd <= beforeEnd {
		t.Fatalf("expected data cursor to grow past %d, got %d", beforeEnd, s.dataEnd)
	}

	got, found, err := s.GetByID(rec.ID)
	if err != nil || !found {
		t.Fatalf("get_by_id: found=%v err=%v", found, err)
	}
	if got.OriginalText != rec.OriginalText {
		t.Fatalf("text mismatch after grow-update")
	}
}

func TestStoreUpdateMissingReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	ok, err := s.Update(Record{ID: NewID()})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok {
		t.Fatal("expected update of missing id to return false")
	}
}

func TestStoreRemoveThenIterate(t *testing.T) {
	s := openTestStore(t)

	ids := make([]ID, 3)
	for i := range ids {
		ids[i] = NewID()
		if err := s.Add(Record{ID: ids[i], Values: []float32{float32(i)}}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	ok, err := s.Remove(ids[1])
	if err != nil || !ok {
		t.Fatalf("remove: ok=%v err=%v", ok, err)
	}
	if s.Count() != 2 {
		t.Fatalf("count = %d, want 2", s.Count())
	}

	records, err := s.Iterate()
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("iterate len = %d, want 2", len(records))
	}
	for _, rec := range records {
		if rec.ID == ids[1] {
			t.Fatal("removed record still present in iteration")
		}
	}

	if _, found, _ := s.GetByID(ids[1]); found {
		t.Fatal("removed record still retrievable by id")
	}
}

func TestStoreCapacityExhausted(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir, "small", Config{Capacity: 2, AverageRecordBytes: 256})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	for i := 0; i < 2; i++ {
		if err := s.Add(Record{ID: NewID()}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := s.Add(Record{ID: NewID()}); err == nil {
		t.Fatal("expected insufficient capacity error")
	}
}

func TestStoreClear(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		if err := s.Add(Record{ID: NewID()}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.Count() != 0 {
		t.Fatalf("count after clear = %d, want 0", s.Count())
	}
	records, err := s.Iterate()
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("iterate after clear returned %d records", len(records))
	}
}

func TestStoreReopenPersists(t *testing.T) {
	dir := t.TempDir()
	rec := Record{ID: NewID(), Values: []float32{9, 9, 9}, OriginalText: "persisted"}

	s1, err := OpenStore(dir, "persist", testConfig())
	if err != nil {
		t.Fatalf("open 1: %v", err)
	}
	if err := s1.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenStore(dir, "persist", testConfig())
	if err != nil {
		t.Fatalf("open 2: %v", err)
	}
	defer s2.Close()

	got, found, err := s2.GetByID(rec.ID)
	if err != nil || !found {
		t.Fatalf("get_by_id after reopen: found=%v err=%v", found, err)
	}
	if !got.Equal(rec) {
		t.Fatalf("record mismatch after reopen: got %+v, want %+v", got, rec)
	}
}

func TestStoreReadOnlyRejectsMutation(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.ReadOnly = true
	s, err := OpenStore(dir, "readonly", cfg)
	if err != nil {
		t.Fatalf("open read-only: %v", err)
	}
	defer s.Close()

	rec := Record{ID: NewID(), Values: []float32{1, 2, 3}}
	if err := s.Add(rec); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("add: got %v, want ErrReadOnly", err)
	}
	if _, err := s.Update(rec); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("update: got %v, want ErrReadOnly", err)
	}
	if _, err := s.Remove(rec.ID); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("remove: got %v, want ErrReadOnly", err)
	}
	if err := s.Clear(); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("clear: got %v, want ErrReadOnly", err)
	}
	if err := s.Defragment(); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("defragment: got %v, want ErrReadOnly", err)
	}
	if _, err := s.DefragmentBatch(); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("defragment_batch: got %v, want ErrReadOnly", err)
	}
	if err := s.AttemptRepair(); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("attempt_repair: got %v, want ErrReadOnly", err)
	}
}

func TestStoreReadOnlyAllowsConcurrentReaders(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.ReadOnly = true

	s1, err := OpenStore(dir, "shared", cfg)
	if err != nil {
		t.Fatalf("open reader 1: %v", err)
	}
	defer s1.Close()

	// A second process opening the same title under AccessShared must not
	// block behind the first: flock(2)/LockFileEx both permit multiple
	// concurrent shared holders. If storeLock.lock ever regressed to
	// requesting AccessExclusive for Config.ReadOnly, this would hang.
	s2, err := OpenStore(dir, "shared", cfg)
	if err != nil {
		t.Fatalf("open reader 2: %v", err)
	}
	defer s2.Close()
}
