package nbrly

import "fmt"

// Iterate reads each non-tombstoned record in insertion order under a read
// lock and returns them as a slice; the lock is released before Iterate
// returns, so the slice is a snapshot and later mutations are not seen in
// it — callers re-invoke Iterate for a fresh snapshot (spec.md §4.7).
func (s *Store) Iterate() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, s.count)
	for slot := 0; slot < s.indexEnd; slot++ {
		e, err := s.readIndexEntryUnderLock(slot)
		if err != nil {
			return nil, err
		}
		if e.ID.IsTombstone() {
			continue
		}
		rec, ok, err := s.readRecordUnderLock(e)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// CopyTo copies up to len(buffer)-start records, beginning at logical
// position start, into buffer. Fails with ErrOutOfBounds if start is
// negative or beyond buffer's length.
func (s *Store) CopyTo(buffer []Record, start int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if start < 0 || start > len(buffer) {
		return fmt.Errorf("copy_to: %w", ErrOutOfBounds)
	}

	logical := 0
	dst := start
	for slot := 0; slot < s.indexEnd && dst < len(buffer); slot++ {
		e, err := s.readIndexEntryUnderLock(slot)
		if err != nil {
			return err
		}
		if e.ID.IsTombstone() {
			continue
		}
		if logical >= start {
			rec, ok, err := s.readRecordUnderLock(e)
			if err != nil {
				return err
			}
			if ok {
				buffer[dst] = rec
				dst++
			}
		}
		logical++
	}
	return nil
}
