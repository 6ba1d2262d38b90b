// Corruption Detector (C4): validates index/data invariants on open and
// repairs by rewriting the largest internally consistent prefix to fresh
// temporary files, then atomically renaming them over the originals.
// Grounded directly on the teacher's repair.go (temp file, full rewrite,
// atomic rename via os.Rename), generalized from "sorted sections" to
// "consistent prefix" since this format has no sort order to restore.
package nbrly

import (
	"fmt"
	"os"
)

// ValidateIndex reads entries from the beginning; the first EMPTY entry
// terminates the valid prefix. Fails with ErrCorrupt if more than
// expectedCount valid entries are found (spec.md §4.4).
func (s *Store) ValidateIndex(expectedCount int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	valid := 0
	for slot := 0; slot < int(s.capacity); slot++ {
		e, err := s.readIndexEntryUnderLock(slot)
		if err != nil {
			return err
		}
		if e.ID.IsEmpty() {
			break
		}
		valid++
		if valid > expectedCount {
			return fmt.Errorf("validate_index: %w: more entries than expected", ErrCorrupt)
		}
	}
	return nil
}

// ValidateData checks that the data file is at least as long as the
// minimum implied by the index's maximum data_offset+data_length.
func (s *Store) ValidateData() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxEnd int64
	for slot := 0; slot < s.indexEnd; slot++ {
		e, err := s.readIndexEntryUnderLock(slot)
		if err != nil {
			return err
		}
		if e.ID.IsEmpty() {
			break
		}
		end := e.Offset + int64(e.Length)
		if end > maxEnd {
			maxEnd = end
		}
	}
	if maxEnd > s.dataFile.Capacity() {
		return fmt.Errorf("validate_data: %w: data file shorter than index implies", ErrCorrupt)
	}
	return nil
}

// AttemptRepair finds the last position at which the index is internally
// consistent — every live entry's record bytes checksum-verify, and every
// entry's region lies inside the data file's capacity — and rewrites both files to
// that prefix. count is recomputed afterward.
func (s *Store) AttemptRepair() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritableUnderLock(); err != nil {
		return err
	}
	return s.attemptRepairUnderLock()
}

func (s *Store) attemptRepairUnderLock() error {
	validSlots := 0
	var dataEnd int64
	for slot := 0; slot < int(s.capacity); slot++ {
		e, err := s.readIndexEntryUnderLock(slot)
		if err != nil {
			break
		}
		if e.ID.IsEmpty() {
			break
		}
		end := e.Offset + int64(e.Length)
		if e.Offset < 0 || e.Length == 0 || end > s.dataCapacity {
			break
		}
		if !e.ID.IsTombstone() {
			buf := make([]byte, e.Length)
			if _, err := s.dataFile.ReadAt(buf, e.Offset); err != nil {
				break
			}
			if !verifyChecksum(buf) {
				break
			}
		}
		validSlots++
		if end > dataEnd {
			dataEnd = end
		}
	}

	if err := s.rewriteToTempFilesUnderLock(validSlots, dataEnd); err != nil {
		return fmt.Errorf("attempt_repair: %w", err)
	}

	return s.rebuildCursorsUnderLock()
}

// rewriteToTempFilesUnderLock copies the first validSlots index entries
// and the [0, dataEnd) data region into fresh temporary files, then
// atomically renames them over the originals, exactly as the teacher's
// Repair does for its own single file (repair.go).
func (s *Store) rewriteToTempFilesUnderLock(validSlots int, dataEnd int64) error {
	indexPath := s.indexFile.Filename()
	dataPath := s.dataFile.Filename()
	tmpIndexPath := indexPath + ".tmp"
	tmpDataPath := dataPath + ".tmp"

	tmpIndex, err := openMappedFile(tmpIndexPath, int64(s.capacity)*IndexEntrySize, Persistent)
	if err != nil {
		return err
	}
	tmpData, err := openMappedFile(tmpDataPath, s.dataCapacity, Persistent)
	if err != nil {
		tmpIndex.Dispose()
		os.Remove(tmpIndexPath)
		return err
	}

	for slot := 0; slot < validSlots; slot++ {
		e, err := s.readIndexEntryUnderLock(slot)
		if err != nil {
			return err
		}
		if _, err := tmpIndex.WriteAt(encodeIndexEntry(e), int64(slot)*IndexEntrySize); err != nil {
			return err
		}
	}
	if validSlots < int(s.capacity) {
		if _, err := tmpIndex.WriteAt(encodeIndexEntry(indexEntry{ID: Empty}), int64(validSlots)*IndexEntrySize); err != nil {
			return err
		}
	}
	if dataEnd > 0 {
		buf := make([]byte, dataEnd)
		if _, err := s.dataFile.ReadAt(buf, 0); err != nil {
			return err
		}
		if _, err := tmpData.WriteAt(buf, 0); err != nil {
			return err
		}
	}

	if err := tmpIndex.FlushView(); err != nil {
		return err
	}
	if err := tmpData.FlushView(); err != nil {
		return err
	}

	oldIndex, oldData := s.indexFile, s.dataFile
	if err := oldIndex.Dispose(); err != nil {
		return err
	}
	if err := oldData.Dispose(); err != nil {
		return err
	}
	if err := tmpIndex.Dispose(); err != nil {
		return err
	}
	if err := tmpData.Dispose(); err != nil {
		return err
	}

	if err := os.Rename(tmpIndexPath, indexPath); err != nil {
		return fmt.Errorf("rename %s: %w", tmpIndexPath, err)
	}
	if err := os.Rename(tmpDataPath, dataPath); err != nil {
		return fmt.Errorf("rename %s: %w", tmpDataPath, err)
	}

	newIndex, err := openMappedFile(indexPath, int64(s.capacity)*IndexEntrySize, Persistent)
	if err != nil {
		return err
	}
	newData, err := openMappedFile(dataPath, s.dataCapacity, Persistent)
	if err != nil {
		newIndex.Dispose()
		return err
	}
	s.indexFile = newIndex
	s.dataFile = newData
	s.dm.Replace(oldIndex, newIndex)
	s.dm.Replace(oldData, newData)
	s.existence.Reset()
	return nil
}
