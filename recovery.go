// WAL replay on open. Grounded on other_examples/...vector_storage.go's
// replayWAL(), which replays entries through a dedicated path that bypasses
// WAL logging to avoid recursion, then checkpoints (truncates) the log.
package nbrly

import "fmt"

// replayWALUnderLock re-applies every pending WAL entry using a path that
// does not itself log to the WAL (avoiding recursion, per spec.md §4.7).
// Per-entry failures are logged and skipped rather than aborting startup
// (spec.md §7: "partial recovery is preferred to aborting startup").
func (s *Store) replayWALUnderLock() error {
	entries, err := s.wal.ReadEntries()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := s.replayEntryUnderLock(e); err != nil {
			s.log.Errorw("store: wal replay entry failed, skipping", "kind", e.Kind, "id", e.ID, "error", err)
		}
	}
	return s.wal.Truncate()
}

func (s *Store) replayEntryUnderLock(e WALEntry) error {
	switch e.Kind {
	case WALAdd, WALUpdate:
		rec, err := DecodeRecord(e.Payload)
		if err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		// Idempotent on identifier: if already present with identical
		// content, this is a no-op re-application.
		existing, found, err := s.getByIDUnderLock(rec.ID)
		if err == nil && found && existing.Equal(rec) {
			return nil
		}
		return s.addOrReplaceUnderLockNoWAL(rec, e.IndexPos, e.DataPos)
	case WALRemove:
		return s.removeByIDUnderLockNoWAL(e.ID)
	default:
		return fmt.Errorf("unknown wal entry kind %d", e.Kind)
	}
}
