package nbrly

// CalculateFragmentation walks the valid prefix and returns the integer
// percent of the used data region that is gaps between live records'
// extents: Σ(gap_between_adjacent_records) × 100 ÷ Σ(record_lengths),
// or 0 if no live data exists (§4.7).
func (s *Store) CalculateFragmentation() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calculateFragmentationUnderLock()
}

func (s *Store) calculateFragmentationUnderLock() (int, error) {
	var expectedNext int64
	var totalFragmentation int64
	var totalData int64

	for slot := 0; slot < s.indexEnd; slot++ {
		e, err := s.readIndexEntryUnderLock(slot)
		if err != nil {
			return 0, err
		}
		if e.ID.IsTombstone() {
			continue
		}
		if e.Offset > expectedNext {
			totalFragmentation += e.Offset - expectedNext
		}
		expectedNext = e.Offset + int64(e.Length)
		totalData += int64(e.Length)
	}

	if totalData == 0 {
		return 0, nil
	}
	return int(totalFragmentation * 100 / totalData), nil
}
