package nbrly

import "testing"

func TestFragmentationAndDefragment(t *testing.T) {
	s := openTestStore(t)

	ids := make([]ID, 5)
	for i := range ids {
		ids[i] = NewID()
		if err := s.Add(Record{ID: ids[i], Values: []float32{float32(i)}}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	// Remove every other record to create gaps.
	for i := 0; i < len(ids); i += 2 {
		if ok, err := s.Remove(ids[i]); err != nil || !ok {
			t.Fatalf("remove %d: ok=%v err=%v", i, ok, err)
		}
	}

	pctBefore, err := s.CalculateFragmentation()
	if err != nil {
		t.Fatalf("calculate_fragmentation: %v", err)
	}
	if pctBefore <= 0 {
		t.Fatalf("expected positive fragmentation after removals, got %d", pctBefore)
	}

	if err := s.Defragment(); err != nil {
		t.Fatalf("defragment: %v", err)
	}

	pctAfter, err := s.CalculateFragmentation()
	if err != nil {
		t.Fatalf("calculate_fragmentation after defrag: %v", err)
	}
	if pctAfter != 0 {
		t.Fatalf("expected 0%% fragmentation after full defragment, got %d", pctAfter)
	}

	// Surviving records must still be readable with the same content.
	for i := 1; i < len(ids); i += 2 {
		rec, found, err := s.GetByID(ids[i])
		if err != nil || !found {
			t.Fatalf("get_by_id %d after defrag: found=%v err=%v", i, found, err)
		}
		if rec.Dimension() != 1 || rec.Values[0] != float32(i) {
			t.Fatalf("record %d corrupted after defrag: %+v", i, rec)
		}
	}
}

func TestDefragmentBatchMakesForwardProgress(t *testing.T) {
	s := openTestStore(t)

	ids := make([]ID, 10)
	for i := range ids {
		ids[i] = NewID()
		if err := s.Add(Record{ID: ids[i], Values: []float32{float32(i)}}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	for i := 0; i < len(ids); i += 2 {
		if _, err := s.Remove(ids[i]); err != nil {
			t.Fatalf("remove %d: %v", i, err)
		}
	}

	// A single batch pass should either reduce fragmentation or finish the
	// pass (returning 0); it must not error.
	if _, err := s.DefragmentBatch(); err != nil {
		t.Fatalf("defragment_batch: %v", err)
	}

	for i := 1; i < len(ids); i += 2 {
		if _, found, err := s.GetByID(ids[i]); err != nil || !found {
			t.Fatalf("record %d missing after partial batch defrag: found=%v err=%v", i, found, err)
		}
	}
}

func TestAutoDefragmentTriggersAtThreshold(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Capacity: 64, AverageRecordBytes: 256, DefragThresholdPercent: 1}
	s, err := OpenStore(dir, "auto", cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ids := make([]ID, 6)
	for i := range ids {
		ids[i] = NewID()
		if err := s.Add(Record{ID: ids[i], Values: []float32{float32(i)}}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	for i := 0; i < 4; i++ {
		if _, err := s.Remove(ids[i]); err != nil {
			t.Fatalf("remove %d: %v", i, err)
		}
	}

	// Adding one more record should trigger maybeAutoDefragmentUnderLock
	// given the low threshold; this should not error regardless of
	// whether it actually ran.
	if err := s.Add(Record{ID: NewID(), Values: []float32{99}}); err != nil {
		t.Fatalf("add triggering auto-defrag: %v", err)
	}
}
