package nbrly

import "fmt"

// Add inserts a complete record, becoming observable to subsequent reads
// once this call returns. Follows the §4.7 Add algorithm: WAL-log, write
// the index entry, append the data bytes, notify the Durability Manager,
// then commit the WAL frame and bump count.
func (s *Store) Add(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritableUnderLock(); err != nil {
		return err
	}
	return s.addUnderLock(rec)
}

func (s *Store) addUnderLock(rec Record) error {
	if s.indexEnd >= int(s.capacity) {
		return fmt.Errorf("add %s: %w", rec.ID, ErrInsufficientCapacity)
	}
	blob, err := rec.Encode()
	if err != nil {
		return err
	}
	dataPos := s.dataEnd
	if dataPos+int64(len(blob)) > s.dataCapacity {
		return fmt.Errorf("add %s: %w", rec.ID, ErrInsufficientCapacity)
	}
	indexPos := s.indexEnd

	walOffset, err := s.wal.Log(WALEntry{Kind: WALAdd, ID: rec.ID, IndexPos: int64(indexPos), DataPos: dataPos, Payload: blob})
	if err != nil {
		return fmt.Errorf("add %s: %w", rec.ID, err)
	}

	if err := s.writeIndexEntryUnderLock(indexPos, indexEntry{ID: rec.ID, Offset: dataPos, Length: uint32(len(blob))}); err != nil {
		return fmt.Errorf("add %s: %w", rec.ID, err)
	}
	if _, err := s.dataFile.WriteAt(blob, dataPos); err != nil {
		return fmt.Errorf("add %s: %w", rec.ID, err)
	}

	s.dm.RecordOp()
	if err := s.wal.Commit(walOffset, FrameLen(len(blob))); err != nil {
		return fmt.Errorf("add %s: %w", rec.ID, err)
	}

	s.indexEnd++
	s.dataEnd = dataPos + int64(len(blob))
	s.count++
	s.existence.Add(rec.ID)
	s.maybeAutoDefragmentUnderLock()
	return nil
}

// addOrReplaceUnderLockNoWAL re-applies a WAL-logged Add/Update during
// replay without re-logging (avoids recursion, spec.md §4.7). If the
// identifier is already present it behaves like an in-place/grow update at
// the recorded positions; otherwise it writes a fresh entry exactly at the
// recorded index/data positions so replay is idempotent across retries.
func (s *Store) addOrReplaceUnderLockNoWAL(rec Record, indexPos, dataPos int64) error {
	blob, err := rec.Encode()
	if err != nil {
		return err
	}
	if dataPos+int64(len(blob)) > s.dataCapacity {
		return fmt.Errorf("replay add %s: %w", rec.ID, ErrInsufficientCapacity)
	}

	if _, err := s.dataFile.WriteAt(blob, dataPos); err != nil {
		return err
	}
	if err := s.writeIndexEntryUnderLock(int(indexPos), indexEntry{ID: rec.ID, Offset: dataPos, Length: uint32(len(blob))}); err != nil {
		return err
	}

	if int(indexPos) >= s.indexEnd {
		s.indexEnd = int(indexPos) + 1
	}
	end := dataPos + int64(len(blob))
	if end > s.dataEnd {
		s.dataEnd = end
	}
	if !s.existence.Contains(rec.ID) {
		s.count++
	}
	s.existence.Add(rec.ID)
	return nil
}
