// Vector List Facade (C9): an identifier-preserving wrapper over Store
// that forwards mutations and emits a Modified event after every
// successful Add/Update/Remove/Clear, for the orchestrator and the
// background index service to observe. Grounded on the teacher's
// method-forwarding shape (db.go's CRUD methods each delegating to get.go/
// set.go/delete.go helpers).
package nbrly

// Modified is emitted on VectorList's event channel after a successful
// mutation.
type Modified struct {
	Kind ModifiedKind
	ID   ID
}

// ModifiedKind identifies which mutation produced a Modified event.
type ModifiedKind int

const (
	ModifiedAdd ModifiedKind = iota
	ModifiedUpdate
	ModifiedRemove
	ModifiedClear
)

// VectorList forwards to a Store and publishes Modified events. insert_at
// is deliberately not implemented — positional insert is forbidden by
// contract (spec.md §4.9).
type VectorList struct {
	store  *Store
	events chan Modified
}

// NewVectorList wraps store, buffering up to eventBuffer pending Modified
// events (excess events are dropped rather than blocking the writer —
// the background service only cares that *a* modification happened since
// its last wake, not how many).
func NewVectorList(store *Store, eventBuffer int) *VectorList {
	if eventBuffer <= 0 {
		eventBuffer = 64
	}
	return &VectorList{store: store, events: make(chan Modified, eventBuffer)}
}

// Events returns the channel Modified events are published on.
func (l *VectorList) Events() <-chan Modified { return l.events }

func (l *VectorList) publish(ev Modified) {
	select {
	case l.events <- ev:
	default:
	}
}

// Add forwards to Store.Add and emits ModifiedAdd on success.
func (l *VectorList) Add(rec Record) error {
	if err := l.store.Add(rec); err != nil {
		return err
	}
	l.publish(Modified{Kind: ModifiedAdd, ID: rec.ID})
	return nil
}

// Update forwards to Store.Update and emits ModifiedUpdate on success.
func (l *VectorList) Update(rec Record) (bool, error) {
	ok, err := l.store.Update(rec)
	if err != nil || !ok {
		return ok, err
	}
	l.publish(Modified{Kind: ModifiedUpdate, ID: rec.ID})
	return true, nil
}

// Remove forwards to Store.Remove and emits ModifiedRemove on success.
func (l *VectorList) Remove(id ID) (bool, error) {
	ok, err := l.store.Remove(id)
	if err != nil || !ok {
		return ok, err
	}
	l.publish(Modified{Kind: ModifiedRemove, ID: id})
	return true, nil
}

// Clear forwards to Store.Clear and emits ModifiedClear on success.
func (l *VectorList) Clear() error {
	if err := l.store.Clear(); err != nil {
		return err
	}
	l.publish(Modified{Kind: ModifiedClear})
	return nil
}

// InsertAt is forbidden by contract (spec.md §4.9).
func (l *VectorList) InsertAt(int, Record) error {
	return ErrUnsupported
}

// Get, GetByID, IndexOf, Iterate, CopyTo, CalculateFragmentation, Count,
// Flush forward directly — they are reads or maintenance, not the
// mutations the Modified stream tracks.
func (l *VectorList) Get(i int) (Record, bool, error)      { return l.store.Get(i) }
func (l *VectorList) GetByID(id ID) (Record, bool, error)  { return l.store.GetByID(id) }
func (l *VectorList) IndexOf(id ID) (int, error)           { return l.store.IndexOf(id) }
func (l *VectorList) Iterate() ([]Record, error)           { return l.store.Iterate() }
func (l *VectorList) CopyTo(buf []Record, start int) error { return l.store.CopyTo(buf, start) }
func (l *VectorList) CalculateFragmentation() (int, error) { return l.store.CalculateFragmentation() }
func (l *VectorList) Count() int                           { return l.store.Count() }
func (l *VectorList) Flush() error                         { return l.store.Flush() }
