package nbrly

// Defragment performs one blocking pass: every valid, non-tombstone
// record is rewritten to the smallest offsets, compacting out the gaps
// left by removed and shrunk records; each entry's offset is rewritten in
// place. Count is unchanged. Tombstoned slots stay in the index file: this
// pass does not shrink the index, Add never reuses those slots, and only
// Clear resets them (spec.md §4.7 only specifies rewriting live records'
// offsets).
func (s *Store) Defragment() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritableUnderLock(); err != nil {
		return err
	}

	var writePos int64
	for slot := 0; slot < s.indexEnd; slot++ {
		if err := s.compactOneUnderLock(slot, &writePos); err != nil {
			return err
		}
	}
	s.dataEnd = writePos
	s.defragIndexPos = 0
	s.defragDataPos = 0
	s.dm.RecordOp()
	return nil
}

// DefragmentBatch processes up to DefragBatchSize records per call,
// persisting its scan and write cursors across calls so repeated
// invocations make forward progress without holding the write lock for
// longer than one batch. Returns the fragmentation percent remaining, or
// 0 once a full pass has completed (cursors reset to zero in that case).
func (s *Store) DefragmentBatch() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritableUnderLock(); err != nil {
		return 0, err
	}
	return s.defragmentBatchUnderLock()
}

// defragmentBatchUnderLock runs the bounded batch body, assuming s.mu is
// already held for writing. Shared by the public DefragmentBatch and the
// auto-defragment trigger in maybeAutoDefragmentUnderLock.
func (s *Store) defragmentBatchUnderLock() (int, error) {
	processed := 0
	slot := s.defragIndexPos
	for ; slot < s.indexEnd && processed < DefragBatchSize; slot++ {
		if err := s.compactOneUnderLock(slot, &s.defragDataPos); err != nil {
			return 0, err
		}
		processed++
	}
	s.defragIndexPos = slot
	s.dm.RecordOp()

	if s.defragIndexPos >= s.indexEnd {
		s.dataEnd = s.defragDataPos
		s.defragIndexPos = 0
		s.defragDataPos = 0
		return 0, nil
	}
	return s.calculateFragmentationUnderLock()
}

// compactOneUnderLock inspects the entry at slot: if it is a tombstone it
// is skipped entirely (its gap is absorbed into the next live record's
// move); otherwise its data is relocated to *writePos if it isn't already
// there, using a scratch buffer sized to this record (spec.md §4.7: "a
// rented scratch buffer sized to the largest record in the batch" — sized
// per-record here since allocation is cheap relative to the I/O it
// accompanies). *writePos is advanced by the entry's length either way.
func (s *Store) compactOneUnderLock(slot int, writePos *int64) error {
	e, err := s.readIndexEntryUnderLock(slot)
	if err != nil {
		return err
	}
	if e.ID.IsTombstone() {
		return nil
	}
	if e.Offset != *writePos {
		buf := make([]byte, e.Length)
		if _, err := s.dataFile.ReadAt(buf, e.Offset); err != nil {
			return err
		}
		if _, err := s.dataFile.WriteAt(buf, *writePos); err != nil {
			return err
		}
		if err := s.writeIndexEntryUnderLock(slot, indexEntry{ID: e.ID, Offset: *writePos, Length: e.Length}); err != nil {
			return err
		}
	}
	*writePos += int64(e.Length)
	return nil
}

// maybeAutoDefragmentUnderLock runs one DefragmentBatch pass if
// fragmentation has crossed Config.DefragThresholdPercent. Called by
// Add/Update/Remove when the threshold is non-zero.
func (s *Store) maybeAutoDefragmentUnderLock() {
	if s.cfg.DefragThresholdPercent <= 0 {
		return
	}
	pct, err := s.calculateFragmentationUnderLock()
	if err != nil || pct < s.cfg.DefragThresholdPercent {
		return
	}
	_, _ = s.defragmentBatchUnderLock()
}
