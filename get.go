package nbrly

// Get returns the record at logical position i (0-based, skipping
// tombstones), or false if i is out of range.
func (s *Store) Get(i int) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUnderLock(i)
}

func (s *Store) getUnderLock(i int) (Record, bool, error) {
	if i < 0 {
		return Record{}, false, nil
	}
	logical := 0
	for slot := 0; slot < s.indexEnd; slot++ {
		e, err := s.readIndexEntryUnderLock(slot)
		if err != nil {
			return Record{}, false, err
		}
		if e.ID.IsTombstone() {
			continue
		}
		if logical == i {
			return s.readRecordUnderLock(e)
		}
		logical++
	}
	return Record{}, false, nil
}

// GetByID returns the record with the given identifier, or false if not
// present.
func (s *Store) GetByID(id ID) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getByIDUnderLock(id)
}

func (s *Store) getByIDUnderLock(id ID) (Record, bool, error) {
	if id.IsEmpty() || id.IsTombstone() {
		return Record{}, false, nil
	}
	if !s.existence.Contains(id) {
		return Record{}, false, nil
	}
	e, ok, err := s.findEntryUnderLock(id)
	if err != nil || !ok {
		return Record{}, false, err
	}
	return s.readRecordUnderLock(e)
}

// findEntryUnderLock linearly scans the valid prefix for id, skipping
// tombstones, stopping at the first EMPTY (implied by indexEnd).
func (s *Store) findEntryUnderLock(id ID) (indexEntry, bool, error) {
	for slot := 0; slot < s.indexEnd; slot++ {
		e, err := s.readIndexEntryUnderLock(slot)
		if err != nil {
			return indexEntry{}, false, err
		}
		if e.ID.IsTombstone() {
			continue
		}
		if e.ID == id {
			return e, true, nil
		}
	}
	return indexEntry{}, false, nil
}

// findSlotUnderLock is like findEntryUnderLock but also returns the
// physical slot index, needed by Update/Remove to patch the entry in
// place.
func (s *Store) findSlotUnderLock(id ID) (slot int, e indexEntry, ok bool, err error) {
	for slot = 0; slot < s.indexEnd; slot++ {
		e, err = s.readIndexEntryUnderLock(slot)
		if err != nil {
			return 0, indexEntry{}, false, err
		}
		if e.ID.IsTombstone() {
			continue
		}
		if e.ID == id {
			return slot, e, true, nil
		}
	}
	return 0, indexEntry{}, false, nil
}

// IndexOf returns the logical position of id, skipping tombstones while
// counting, or -1 if not present.
func (s *Store) IndexOf(id ID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logical := 0
	for slot := 0; slot < s.indexEnd; slot++ {
		e, err := s.readIndexEntryUnderLock(slot)
		if err != nil {
			return -1, err
		}
		if e.ID.IsTombstone() {
			continue
		}
		if e.ID == id {
			return logical, nil
		}
		logical++
	}
	return -1, nil
}

func (s *Store) readRecordUnderLock(e indexEntry) (Record, bool, error) {
	buf := make([]byte, e.Length)
	if _, err := s.dataFile.ReadAt(buf, e.Offset); err != nil {
		return Record{}, false, err
	}
	rec, err := DecodeRecord(buf)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}
