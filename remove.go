package nbrly

import "fmt"

// Remove deletes the record identified by id. Only the 16-byte identifier
// field is rewritten to Tombstone in the index file; the existing
// offset/length are preserved so the data bytes remain reachable until
// Defragment reclaims them (§4.7 Remove algorithm). Returns false if id
// does not exist.
func (s *Store) Remove(id ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritableUnderLock(); err != nil {
		return false, err
	}
	return s.removeByIDUnderLock(id)
}

// RemoveByID is an alias for Remove, matching spec.md's public surface
// shape (remove(record) / remove_by_id(id)).
func (s *Store) RemoveByID(id ID) (bool, error) {
	return s.Remove(id)
}

func (s *Store) removeByIDUnderLock(id ID) (bool, error) {
	slot, _, ok, err := s.findSlotUnderLock(id)
	if err != nil || !ok {
		return false, err
	}

	walOffset, err := s.wal.Log(WALEntry{Kind: WALRemove, ID: id, IndexPos: int64(slot), Payload: Tombstone[:]})
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", id, err)
	}

	if err := s.writeIndexIDUnderLock(slot, Tombstone); err != nil {
		return false, fmt.Errorf("remove %s: %w", id, err)
	}

	s.dm.RecordOp()
	if err := s.wal.Commit(walOffset, FrameLen(len(Tombstone))); err != nil {
		return false, fmt.Errorf("remove %s: %w", id, err)
	}

	s.count--
	s.maybeAutoDefragmentUnderLock()
	return true, nil
}

// removeByIDUnderLockNoWAL applies a WAL-logged Remove during replay
// without re-logging. Idempotent: re-tombstoning an already-tombstoned
// slot is a no-op on count.
func (s *Store) removeByIDUnderLockNoWAL(id ID) error {
	for slot := 0; slot < s.indexEnd; slot++ {
		e, err := s.readIndexEntryUnderLock(slot)
		if err != nil {
			return err
		}
		if e.ID == id {
			if err := s.writeIndexIDUnderLock(slot, Tombstone); err != nil {
				return err
			}
			s.count--
			return nil
		}
		if e.ID.IsTombstone() {
			continue
		}
	}
	return nil
}
