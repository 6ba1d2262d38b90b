package nbrly

import "fmt"

// Update replaces the record identified by rec.ID with rec, in place if
// the new encoding fits in the existing slot, or by relocating to the
// data cursor's end if it grows (§4.7 Update algorithm). Returns false
// without mutation if the identifier does not exist.
func (s *Store) Update(rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritableUnderLock(); err != nil {
		return false, err
	}

	slot, old, ok, err := s.findSlotUnderLock(rec.ID)
	if err != nil || !ok {
		return false, err
	}

	blob, err := rec.Encode()
	if err != nil {
		return false, err
	}

	newOffset := old.Offset
	if uint32(len(blob)) > old.Length {
		newOffset = s.dataEnd
		if newOffset+int64(len(blob)) > s.dataCapacity {
			return false, fmt.Errorf("update %s: %w", rec.ID, ErrInsufficientCapacity)
		}
	}

	walOffset, err := s.wal.Log(WALEntry{Kind: WALUpdate, ID: rec.ID, IndexPos: int64(slot), DataPos: newOffset, Payload: blob})
	if err != nil {
		return false, fmt.Errorf("update %s: %w", rec.ID, err)
	}

	if _, err := s.dataFile.WriteAt(blob, newOffset); err != nil {
		return false, fmt.Errorf("update %s: %w", rec.ID, err)
	}
	if err := s.writeIndexEntryUnderLock(slot, indexEntry{ID: rec.ID, Offset: newOffset, Length: uint32(len(blob))}); err != nil {
		return false, fmt.Errorf("update %s: %w", rec.ID, err)
	}

	s.dm.RecordOp()
	if err := s.wal.Commit(walOffset, FrameLen(len(blob))); err != nil {
		return false, fmt.Errorf("update %s: %w", rec.ID, err)
	}

	if newOffset != old.Offset {
		end := newOffset + int64(len(blob))
		if end > s.dataEnd {
			s.dataEnd = end
		}
	}
	s.maybeAutoDefragmentUnderLock()
	return true, nil
}
